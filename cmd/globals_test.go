package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"code.dumpstack.io/tools/kclean/kernel"
)

func TestParseExclusions(t *testing.T) {
	assert := assert.New(t)

	exclude, err := parseExclusions("config,systemmap", nil)
	assert.NoError(err)
	assert.True(exclude[kernel.Config])
	assert.True(exclude[kernel.SystemMap])
	assert.False(exclude[kernel.Initramfs])

	_, err = parseExclusions("vmlinuz", nil)
	assert.Error(err, "kernel image exclusion is unsupported")

	_, err = parseExclusions("bogus", nil)
	assert.Error(err)

	// rc file roles arrive already parsed
	exclude, err = parseExclusions("config",
		[]kernel.FileType{kernel.Build})
	assert.NoError(err)
	assert.True(exclude[kernel.Build])
	assert.True(exclude[kernel.Config])

	_, err = parseExclusions("", []kernel.FileType{kernel.Image})
	assert.Error(err)
}

func TestOverride(t *testing.T) {
	assert := assert.New(t)

	// flag left at default, rc file wins
	assert.Equal("grub2", override("auto", "auto", "grub2"))
	// explicit flag wins over rc
	assert.Equal("lilo", override("lilo", "auto", "grub2"))
	// nothing set
	assert.Equal("auto", override("auto", "auto", ""))
}
