package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lastping/lastpingd/internal/config"
	"github.com/lastping/lastpingd/internal/observability"
	"github.com/lastping/lastpingd/internal/service"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to daemon config")
	writeConfig := flag.Bool("write-config", false, "write a starter config and exit")
	overwrite := flag.Bool("overwrite", false, "overwrite an existing config with -write-config")
	flag.Parse()

	if *writeConfig {
		if err := config.WriteTemplate(*configPath, *overwrite); err != nil {
			fmt.Fprintf(os.Stderr, "lastpingd: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *configPath)
		return
	}

	observability.InitLogger("lastpingd")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lastpingd: %v\n", err)
		os.Exit(1)
	}

	svc, err := service.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lastpingd: %v\n", err)
		os.Exit(1)
	}
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "lastpingd: %v\n", err)
		os.Exit(1)
	}
}
