package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"teapot/internal/config"
	"teapot/internal/logging"
)

func init() {
	// GLFW/Vulkan require the main thread.
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", config.DefaultFile, "path to the TOML configuration")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "teapot: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logging.SetLogger(logging.New(os.Stderr, cfg.Log.Format, level))

	app, err := NewFirstApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	logging.Logger().Info("entering main loop", "title", cfg.Window.Title, "present_mode", cfg.Renderer.PresentMode)
	return app.Run()
}
