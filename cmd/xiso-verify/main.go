package main

import (
	"fmt"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-xdvdfs"
)

type rootParameters struct {
	Filepath string `short:"f" long:"filepath" description:"File-path of the disc image to verify" required:"true"`
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

	verifier := xdvdfs.NewVerifier(xdvdfs.VerifierOptions{Logger: consoleLogger{}})

	state, diagnostics, err := verifier.Run(rootArguments.Filepath)

	if diagnostics != nil {
		fmt.Fprintf(os.Stderr, "recovered corrupt entries: %s\n", diagnostics.Error())
	}

	fmt.Printf("%s\n", state)

	if state != xdvdfs.Passed {
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		}

		os.Exit(2)
	}
}
