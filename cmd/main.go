package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"streamd/internal/streamd"
)

func main() {
	config, err := streamd.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	streamd.InitLogger(config)

	server := streamd.NewServer(config)

	// 서버 시작
	if err := server.Start(); err != nil {
		slog.Error("Failed to start server", "err", err)
		os.Exit(1)
	}

	// 시그널 수신을 위한 채널 생성
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// 시그널 대기
	sig := <-sigChan
	slog.Info("Received signal, shutting down server", "signal", sig)

	// 서버 정지
	server.Stop()
	slog.Info("Server shutdown complete")
}
