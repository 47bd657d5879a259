package main

import (
	"context"
	"log"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/unarc/internal/cmd"
	"github.com/nguyengg/unarc/internal/config"
)

func main() {
	var opts cmd.Unarc

	p := cmd.NewParser(&opts)
	p.CommandHandler = func(command flags.Commander, args []string) error {
		if command == nil {
			return nil
		}

		if file, err := config.LoadProfile(context.Background(), opts.Profile); err != nil {
			return err
		} else if file != "" {
			log.Printf(`loaded config from "%s"`, file)
		}

		return command.Execute(args)
	}

	_, err := p.Parse()
	exit(err)
}
