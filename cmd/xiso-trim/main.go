package main

import (
	"fmt"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-xdvdfs"
)

type rootParameters struct {
	SourceFilepath         string `short:"s" long:"source-filepath" description:"File-path of the source disc image" required:"true"`
	DestinationFilepath    string `short:"o" long:"output-filepath" description:"File-path to write the trimmed image to" required:"true"`
	SkipSystemUpdate       bool   `long:"skip-system-update" description:"Exclude the $SystemUpdate subtree (exact match)"`
	SkipSystemUpdatePrefix bool   `long:"skip-system-update-prefix" description:"Exclude any subtree whose name begins with $SystemUpdate"`
	CheckIntegrity         bool   `long:"verify" description:"Re-verify the output after writing it"`
}

var (
	rootArguments = new(rootParameters)
)

type consoleLogger struct{}

func (consoleLogger) Printf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func main() {
	defer func() {
		if state := recover(); state != nil {
			err := log.Wrap(state.(error))
			log.PrintError(err)
			os.Exit(-1)
		}
	}()

	p := flags.NewParser(rootArguments, flags.Default)

	_, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}

	options := xdvdfs.TrimmerOptions{
		SkipSystemUpdate:       rootArguments.SkipSystemUpdate,
		SkipSystemUpdatePrefix: rootArguments.SkipSystemUpdatePrefix,
		CheckIntegrity:         rootArguments.CheckIntegrity,
		Logger:                 consoleLogger{},
	}

	trimmer := xdvdfs.NewTrimmer(options)

	result, err := trimmer.Run(rootArguments.SourceFilepath, rootArguments.DestinationFilepath)
	log.PanicIf(err)

	fmt.Printf("%s\n", result)

	if result == xdvdfs.Failed {
		os.Exit(2)
	}
}
