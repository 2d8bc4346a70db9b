// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MagicSakuraD/exca-teleop/lib/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServerServesAndDrains(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.URL.Path)
	})
	var shutdowns atomic.Int32
	server, err := New(Config{
		Address:    "127.0.0.1:0",
		Handler:    echo,
		OnShutdown: func() { shutdowns.Add(1) },
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	testutil.RequireClosed(t, server.Bound(), 5*time.Second, "listener never bound")

	response, err := http.Get("http://" + server.Addr().String() + "/ws")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(response.Body)
	response.Body.Close()
	if string(body) != "/ws" {
		t.Errorf("body = %q, want /ws", body)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Serve did not return"); err != nil {
		t.Errorf("Serve = %v, want nil", err)
	}
	testutil.Eventually(t, 5*time.Second, func() bool { return shutdowns.Load() == 1 }, "OnShutdown not called")
}

func TestServerListenFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer occupied.Close()

	server, err := New(Config{Address: occupied.Addr().String(), Handler: http.NotFoundHandler(), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := server.Serve(context.Background()); err == nil {
		t.Error("Serve on an occupied port succeeded")
	}
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	handler := http.NotFoundHandler()
	logger := discardLogger()
	for name, cfg := range map[string]Config{
		"address": {Handler: handler, Logger: logger},
		"handler": {Address: ":0", Logger: logger},
		"logger":  {Address: ":0", Handler: handler},
	} {
		if _, err := New(cfg); err == nil {
			t.Errorf("New without %s succeeded", name)
		}
	}
}
