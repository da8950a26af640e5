package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"tgbotkit/internal/config"
	"tgbotkit/internal/metrics"
	"tgbotkit/pkg/tgbot"
)

func TestTokenSetCommand(t *testing.T) {
	var stored []string
	root := newRootCmd(func(token string) error {
		stored = append(stored, token)
		return nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "set", "123:abc"})

	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !slices.Equal(stored, []string{"123:abc"}) {
		t.Fatalf("stored = %v, want [123:abc]", stored)
	}
	if !strings.Contains(out.String(), "stored") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestTokenSetRequiresOneArgument(t *testing.T) {
	root := newRootCmd(func(string) error {
		t.Fatal("token stored without an argument")
		return nil
	})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token", "set"})

	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunWithoutConfigFails(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "root command", args: []string{"--config", "missing.json"}},
		{name: "run command", args: []string{"run", "--config", "missing.json"}},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Chdir(t.TempDir())

			root := newRootCmd(func(string) error { return nil })
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(testCase.args)

			err := root.ExecuteContext(context.Background())
			if !errors.Is(err, config.ErrConfigNotFound) {
				t.Fatalf("error = %v, want ErrConfigNotFound", err)
			}
			if !strings.Contains(err.Error(), "missing.json") {
				t.Fatalf("error = %v, want the file name", err)
			}
		})
	}
}

func TestRegisterRuntimeModules(t *testing.T) {
	bot, err := tgbot.New("123:abc")
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	if err := registerRuntimeModules(context.Background(), bot, nil); err != nil {
		t.Fatalf("register modules: %v", err)
	}

	if got := bot.Modules(); !slices.Equal(got, []string{"demo", "help", "pingpong"}) {
		t.Fatalf("modules = %v", got)
	}
	var names []string
	for _, command := range bot.Commands() {
		names = append(names, command.Name)
	}
	if !slices.Equal(names, []string{"counter", "help", "ping"}) {
		t.Fatalf("commands = %v", names)
	}
}

func TestNewBotWiresCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector, err := metrics.New(registry)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}

	if _, err := newBot(config.Config{BotToken: "123:abc", OutboundRate: 5, OutboundBurst: 1}, nil, collector); err != nil {
		t.Fatalf("new bot: %v", err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, family := range families {
		if family.GetName() == "tgbot_cached_objects" {
			found = len(family.GetMetric()) == 4
		}
	}
	if !found {
		t.Fatal("cached object gauges for the four stores are not registered")
	}
}

func TestMetricsRouter(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector, err := metrics.New(registry)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	collector.ObserveUpdate("message")

	ready := false
	server := httptest.NewServer(newMetricsRouter(registry, func() bool { return ready }))
	t.Cleanup(server.Close)

	get := func(path string) (int, string) {
		t.Helper()
		response, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		defer response.Body.Close()
		var body bytes.Buffer
		_, _ = body.ReadFrom(response.Body)
		return response.StatusCode, body.String()
	}

	if status, _ := get("/healthz"); status != http.StatusServiceUnavailable {
		t.Fatalf("healthz before start = %d, want 503", status)
	}
	ready = true
	if status, body := get("/healthz"); status != http.StatusOK || body != "ok" {
		t.Fatalf("healthz = %d %q, want 200 ok", status, body)
	}
	status, body := get("/metrics")
	if status != http.StatusOK || !strings.Contains(body, `tgbot_updates_total{kind="message"} 1`) {
		t.Fatalf("metrics = %d\n%s", status, body)
	}
}
