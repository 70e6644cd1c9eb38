// Package command sends one-shot script commands to the device over HTTP.
package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/m8test/m8link/pkg/common"
	"github.com/m8test/m8link/pkg/config"
	"github.com/m8test/m8link/pkg/errors"
)

// Kind is the script action carried by a command line
type Kind string

const (
	KindStart     Kind = "start"
	KindInterrupt Kind = "interrupt"
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 1 << 20

// Channel issues commands against the device's request/response endpoints.
// It never retries; each call makes at most one request per endpoint.
type Channel struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewChannel creates a command channel for the device described by cfg
func NewChannel(cfg *config.Config, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: cfg.SocketTimeout,
		MaxIdleConnsPerHost:   2,
	}

	return &Channel{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		logger: logger,
	}
}

// BuildCommandLine renders the text command understood by the device.
// A blank argument is omitted.
func BuildCommandLine(kind Kind, root, argument string) string {
	line := fmt.Sprintf("script %s build --path %s", kind, root)
	if strings.TrimSpace(argument) != "" {
		line += " --argument " + argument
	}
	return line
}

// ProjectRoot asks the device for the absolute path of the script project.
func (c *Channel) ProjectRoot(ctx context.Context) (string, error) {
	if err := c.cfg.Validate(); err != nil {
		c.logger.Error("Invalid device configuration", slog.String("error", err.Error()))
		return "", err
	}

	body, err := c.post(ctx, common.PathProjectRoot, "")
	if err != nil {
		c.logger.Error("Failed to get project root", slog.String("error", err.Error()))
		return "", err
	}

	root := strings.TrimSpace(string(body))
	if root == "" {
		err := errors.NewProtocolError("empty project root", nil, common.PathProjectRoot)
		c.logger.Error("Failed to get project root", slog.String("error", err.Error()))
		return "", err
	}

	c.logger.Debug("Resolved project root", slog.String("root", root))
	return root, nil
}

// Send resolves the project root and executes a script command. A
// success=false envelope yields a rejected error with the device's message.
func (c *Channel) Send(ctx context.Context, kind Kind, argument string) error {
	root, err := c.ProjectRoot(ctx)
	if err != nil {
		return err
	}

	line := BuildCommandLine(kind, root, argument)

	body, err := c.post(ctx, common.PathCommandExecute, line)
	if err != nil {
		c.logger.Error("Failed to execute command", slog.String("command", line), slog.String("error", err.Error()))
		return err
	}

	env, decodeErr := common.DecodeEnvelope(body)
	if decodeErr != nil {
		err := errors.NewProtocolError("invalid command response", decodeErr, truncate(string(body), 128))
		c.logger.Error("Failed to execute command", slog.String("command", line), slog.String("error", err.Error()))
		return err
	}

	if !env.IsSuccess() {
		c.logger.Error("Command rejected", slog.String("command", line), slog.String("message", env.Message))
		return errors.NewRejectedError(env.Message)
	}

	c.logger.Debug("Command executed", slog.String("command", line), slog.String("message", env.Message))
	return nil
}

func (c *Channel) Start(ctx context.Context, argument string) error {
	return c.Send(ctx, KindStart, argument)
}

func (c *Channel) Interrupt(ctx context.Context) error {
	return c.Send(ctx, KindInterrupt, "")
}

// Close releases idle keep-alive connections.
func (c *Channel) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Channel) post(ctx context.Context, path, body string) ([]byte, error) {
	url := c.cfg.HTTPURL(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return nil, errors.NewTransportError("building request", err, url)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewNetworkError("request failed", err, url)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.NewNetworkError("reading response", err, url)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewTransportError(
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil,
			fmt.Sprintf("%s: %s", url, truncate(strings.TrimSpace(string(data)), 128)))
	}

	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
