// Copyright 2024 Mikhail Klementev. All rights reserved.
// Use of this source code is governed by a AGPLv3 license
// (or later) that can be found in the LICENSE file.

package main

import (
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"code.dumpstack.io/tools/kclean/cmd"
	"code.dumpstack.io/tools/kclean/config/dotfiles"
)

type LevelWriter struct {
	io.Writer
	Level zerolog.Level
}

func (lw *LevelWriter) WriteLevel(l zerolog.Level, p []byte) (n int, err error) {
	if l >= lw.Level {
		return lw.Writer.Write(p)
	}
	return len(p), nil
}

type CLI struct {
	cmd.Globals

	List   cmd.ListCmd   `cmd:"" help:"list installed kernels and their files"`
	Remove cmd.RemoveCmd `cmd:"" help:"remove outdated kernels"`

	LogLevel string `enum:"trace,debug,info,warn,error" default:"info" help:"console log level"`
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("kclean"),
		kong.Description("remove old kernels, keeping the running one, "+
			"bootloader references and the N newest"),
	)

	level, err := zerolog.ParseLevel(cli.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	consoleWriter := LevelWriter{
		Writer: zerolog.ConsoleWriter{Out: os.Stderr},
		Level:  level,
	}
	fileWriter := LevelWriter{
		Writer: &lumberjack.Logger{
			Filename:   dotfiles.File("kclean.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		},
		Level: zerolog.DebugLevel,
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(
		&consoleWriter,
		&fileWriter,
	)).With().Timestamp().Logger()

	err = ctx.Run(&cli.Globals)
	if err != nil {
		log.Fatal().Err(err).Msg("")
	}
}
