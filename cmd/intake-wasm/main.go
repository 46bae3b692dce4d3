//go:build js && wasm

package main

import (
	"log/slog"
	"os"
	"syscall/js"

	"github.com/joseph-ayodele/bill-extractor/internal/intake"
	"github.com/joseph-ayodele/bill-extractor/internal/intake/dom"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	doc := js.Global().Get("document")
	renderer, err := dom.NewRenderer(doc)
	if err != nil {
		logger.Error("intake page is missing elements", "error", err)
		return
	}

	client := intake.NewClient(intake.ClientConfig{
		BaseURL: js.Global().Get("location").Get("origin").String(),
	}, logger)
	widget := intake.New(renderer, client, intake.WithLogger(logger))

	release := dom.Bind(doc, widget, logger)
	defer release()

	logger.Info("intake widget ready")
	select {}
}
