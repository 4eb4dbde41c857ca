//go:build integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

type integrationServer struct {
	baseURL  string
	client   *http.Client
	cmd      *exec.Cmd
	waitCh   chan error
	output   *bytes.Buffer
	modelDir string
	stopped  bool
}

func buildBinary(t *testing.T) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), "nbstats-integration")

	buildCmd := exec.Command("go", "build", "-o", binPath, ".")
	var buildOutput bytes.Buffer
	buildCmd.Stdout = &buildOutput
	buildCmd.Stderr = &buildOutput
	if err := buildCmd.Run(); err != nil {
		t.Fatalf("build integration binary: %v\nbuild output:\n%s", err, buildOutput.String())
	}
	return binPath
}

func startIntegrationServer(t *testing.T, authToken, modelDir string) *integrationServer {
	t.Helper()

	port := reservePort(t)
	binPath := buildBinary(t)

	args := []string{"serve", "--port", strconv.Itoa(port)}
	if authToken != "" {
		args = append(args, "--auth-token", authToken)
	}

	cmd := exec.Command(binPath, args...)
	cmd.Dir = t.TempDir()
	cmd.Env = append(os.Environ(),
		"NBSTATS_MODEL__DIR="+modelDir,
		"NBSTATS_ARCHIVE__PATH="+filepath.Join(modelDir, "snapshots.db"),
	)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}

	server := &integrationServer{
		baseURL:  "http://127.0.0.1:" + strconv.Itoa(port),
		client:   &http.Client{Timeout: 2 * time.Second},
		cmd:      cmd,
		waitCh:   make(chan error, 1),
		output:   &output,
		modelDir: modelDir,
	}

	go func() {
		server.waitCh <- cmd.Wait()
	}()

	if err := waitForHealth(server); err != nil {
		server.stop(t)
		t.Fatalf("wait for server readiness: %v\nserver output:\n%s", err, output.String())
	}

	t.Cleanup(func() {
		server.stop(t)
	})

	return server
}

func waitForHealth(server *integrationServer) error {
	deadline := time.Now().Add(8 * time.Second)
	for time.Now().Before(deadline) {
		req, err := http.NewRequest(http.MethodGet, server.baseURL+"/readyz", nil)
		if err != nil {
			return err
		}
		resp, err := server.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return context.DeadlineExceeded
}

func (s *integrationServer) stop(t *testing.T) {
	t.Helper()
	if s.cmd.Process == nil || s.stopped {
		return
	}
	s.stopped = true

	_ = s.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-s.waitCh:
		return
	case <-time.After(5 * time.Second):
		_ = s.cmd.Process.Kill()
		select {
		case <-s.waitCh:
		case <-time.After(2 * time.Second):
			t.Logf("timed out waiting for process after kill")
		}
	}
}

func reservePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected listener addr type: %T", listener.Addr())
	}
	return addr.Port
}

func sendRequest(t *testing.T, server *integrationServer, method, path, body, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, server.baseURL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := server.client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	var payload T
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode JSON failed: %v body=%q", err, string(body))
	}
	return payload
}

func TestIntegrationLifecycleFlow(t *testing.T) {
	modelDir := t.TempDir()
	server := startIntegrationServer(t, "", modelDir)

	resp := sendRequest(t, server, http.MethodPost, "/train/spam", "buy now limited offer", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("train spam status: got %d want %d", resp.StatusCode, http.StatusOK)
	}
	_ = decodeJSON[TrainingResponse](t, resp)

	resp = sendRequest(t, server, http.MethodPost, "/train/ham", "team meeting schedule", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("train ham status: got %d want %d", resp.StatusCode, http.StatusOK)
	}
	_ = decodeJSON[TrainingResponse](t, resp)

	resp = sendRequest(t, server, http.MethodGet, "/info", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("info status: got %d want %d", resp.StatusCode, http.StatusOK)
	}
	info := decodeJSON[InfoResponse](t, resp)
	if info.NumberOfCategories != 2 || info.TotalSamples != 2 {
		t.Fatalf("unexpected info: %+v", info)
	}

	resp = sendRequest(t, server, http.MethodPost, "/snapshots/two-samples", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("snapshot status: got %d want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	resp = sendRequest(t, server, http.MethodPost, "/flush", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("flush status: got %d want %d", resp.StatusCode, http.StatusOK)
	}
	flushed := decodeJSON[InfoResponse](t, resp)
	if flushed.NumberOfCategories != 0 {
		t.Fatalf("expected no categories after flush, got %d", flushed.NumberOfCategories)
	}

	resp = sendRequest(t, server, http.MethodPost, "/restore/two-samples", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restore status: got %d want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	resp = sendRequest(t, server, http.MethodGet, "/samples/spam", "", "")
	samples := decodeJSON[SamplesResponse](t, resp)
	if samples.Samples != 1 {
		t.Fatalf("expected restored spam sample, got %+v", samples)
	}

	server.stop(t)
	if _, err := os.Stat(filepath.Join(modelDir, "nbstats.gob")); err != nil {
		t.Fatalf("expected model saved on shutdown: %v\nserver output:\n%s", err, server.output.String())
	}
}

func TestIntegrationAuthAndHealthChecks(t *testing.T) {
	server := startIntegrationServer(t, "secret-token", t.TempDir())

	type errorResp struct {
		Error string
	}

	resp := sendRequest(t, server, http.MethodGet, "/info", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauth info status: got %d want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if got := resp.Header.Get("WWW-Authenticate"); got != `Bearer realm="nbstats"` {
		t.Fatalf("unexpected WWW-Authenticate header: got %q", got)
	}
	errPayload := decodeJSON[errorResp](t, resp)
	if errPayload.Error == "" {
		t.Fatal("expected non-empty error field for unauthorized response")
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		resp = sendRequest(t, server, http.MethodGet, path, "", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status: got %d want %d", path, resp.StatusCode, http.StatusOK)
		}
		_ = decodeJSON[map[string]string](t, resp)
	}

	resp = sendRequest(t, server, http.MethodGet, "/info", "", "secret-token")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("auth info status: got %d want %d", resp.StatusCode, http.StatusOK)
	}
	_ = decodeJSON[InfoResponse](t, resp)
}

func TestIntegrationRestartKeepsTrainingData(t *testing.T) {
	modelDir := t.TempDir()

	first := startIntegrationServer(t, "", modelDir)
	resp := sendRequest(t, first, http.MethodPost, "/train/spam", "buy now", "")
	resp.Body.Close()
	first.stop(t)

	second := startIntegrationServer(t, "", modelDir)
	resp = sendRequest(t, second, http.MethodGet, "/count?feature=buy&category=spam", "", "")
	count := decodeJSON[CountResponse](t, resp)
	if count.Count != 1 {
		t.Fatalf("expected training data to survive restart, got %+v", count)
	}
}
