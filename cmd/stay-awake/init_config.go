package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/stayawake/stay-awake/internal/config"
)

func (a *app) initConfig(c *cli.Context) error {
	path := c.String("path")
	if path == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(a.stdout, "Config file already exists: %s\n", path)
		return nil
	}
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Wrote %s\n", path)
	return nil
}
