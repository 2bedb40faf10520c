//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

// Package container provides a CodeExecutor that executes block
// source in a Docker container. It supports Python and Bash,
// executing them in a network-isolated environment and streaming
// their output while the run is in flight.
package container

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	archive "github.com/moby/go-archive"

	"github.com/opencodeblocks/codegraph-go/codeexecutor"
	"github.com/opencodeblocks/codegraph-go/event"
	"github.com/opencodeblocks/codegraph-go/log"
)

const (
	// defaultImageTag is the default Docker image tag for code execution.
	defaultImageTag            = "codegraph-go-code-executor:latest"
	defaultContainerWorkingDir = "/workspace"
)

// CodeExecutor executes code using a Docker container.
type CodeExecutor struct {
	host            string               // Optional Docker host, defaults to the environment client
	dockerFilePath  string               // Path to directory containing a Dockerfile
	client          *client.Client       // Docker client
	container       *container.Summary   // Running container instance
	hostConfig      container.HostConfig // Host configuration for the container
	containerConfig container.Config     // Configuration for the container
	containerName   string               // Container name, autogenerated when empty
}

// Option defines configuration options for CodeExecutor.
type Option func(*CodeExecutor)

// WithHost sets the base URL for the Docker client.
func WithHost(host string) Option {
	return func(c *CodeExecutor) {
		c.host = host
	}
}

// WithDockerFilePath sets the path to the Dockerfile directory.
func WithDockerFilePath(path string) Option {
	return func(c *CodeExecutor) {
		c.dockerFilePath = path
	}
}

// WithHostConfig sets the host configuration for the container.
func WithHostConfig(hostConfig container.HostConfig) Option {
	return func(c *CodeExecutor) {
		c.hostConfig = hostConfig
	}
}

// WithContainerName sets the name for the Docker container.
func WithContainerName(name string) Option {
	return func(c *CodeExecutor) {
		c.containerName = name
	}
}

// WithContainerConfig sets the configuration for the Docker container.
func WithContainerConfig(containerConfig container.Config) Option {
	return func(c *CodeExecutor) {
		c.containerConfig = containerConfig
	}
}

// New creates a new CodeExecutor backed by a running container.
func New(opts ...Option) (*CodeExecutor, error) {
	c := &CodeExecutor{
		hostConfig: container.HostConfig{
			AutoRemove:  true,   // Remove container after it stops
			Privileged:  false,  // Run in unprivileged mode
			NetworkMode: "none", // No network access
		},
		containerConfig: container.Config{
			Image:      defaultImageTag,
			WorkingDir: defaultContainerWorkingDir,
			Cmd:        []string{"tail", "-f", "/dev/null"}, // Keep container running
			Tty:        true,
			OpenStdin:  true,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.containerConfig.Image == "" && c.dockerFilePath == "" {
		return nil, fmt.Errorf("either image or dockerFilePath must be set for CodeExecutor")
	}
	if c.dockerFilePath != "" {
		abs, err := filepath.Abs(c.dockerFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for %s: %v", c.dockerFilePath, err)
		}
		c.dockerFilePath = abs
	}
	if c.containerName == "" {
		c.containerName = generateContainerName()
	}

	var err error
	if c.host != "" {
		c.client, err = client.NewClientWithOpts(client.WithHost(c.host), client.WithAPIVersionNegotiation())
	} else {
		c.client, err = client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if err := c.initContainer(); err != nil {
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}

	runtime.SetFinalizer(c, (*CodeExecutor).cleanup)
	return c, nil
}

// ExecuteCode implements the codeexecutor.CodeExecutor interface. It
// execs the interpreter inside the running container and streams
// demultiplexed stdout and stderr fragments through emit.
func (c *CodeExecutor) ExecuteCode(
	ctx context.Context,
	input codeexecutor.CodeExecutionInput,
	emit codeexecutor.EmitFunc,
) (codeexecutor.CodeExecutionResult, error) {
	if c.container == nil {
		return codeexecutor.CodeExecutionResult{}, fmt.Errorf("container not initialized")
	}

	var execCmd []string
	switch strings.ToLower(input.Language) {
	case "bash", "sh":
		execCmd = []string{"/bin/bash", "-c", input.Code}
	case "python", "py", "python3", "":
		execCmd = []string{"python3", "-u", "-c", input.Code}
	default:
		return codeexecutor.CodeExecutionResult{}, fmt.Errorf("unsupported language: %s", input.Language)
	}

	execResp, err := c.client.ContainerExecCreate(ctx, c.container.ID, container.ExecOptions{
		Cmd:          execCmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return codeexecutor.CodeExecutionResult{}, fmt.Errorf("failed to create exec: %w", err)
	}

	hijacked, err := c.client.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return codeexecutor.CodeExecutionResult{}, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer hijacked.Close()

	// Interrupting the run closes the attachment, which aborts the
	// copy below.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			hijacked.Close()
		case <-stop:
		}
	}()

	var output strings.Builder
	sink := &emitWriter{out: &output, input: input, emit: emit}
	if _, err := stdcopy.StdCopy(sink, sink, hijacked.Reader); err != nil {
		if ctx.Err() != nil {
			return codeexecutor.CodeExecutionResult{}, fmt.Errorf("execution interrupted: %w", ctx.Err())
		}
		return codeexecutor.CodeExecutionResult{}, fmt.Errorf("failed to read exec output: %w", err)
	}
	return codeexecutor.CodeExecutionResult{Output: output.String()}, nil
}

// emitWriter accumulates output and forwards each written fragment as
// a stdout event.
type emitWriter struct {
	out   *strings.Builder
	input codeexecutor.CodeExecutionInput
	emit  codeexecutor.EmitFunc
}

func (w *emitWriter) Write(p []byte) (int, error) {
	w.out.Write(p)
	if w.emit != nil {
		w.emit(event.NewStdout(w.input.BlockID, string(p), event.WithExecutionID(w.input.ExecutionID)))
	}
	return len(p), nil
}

// createBuildContext creates a tar archive of the build context.
func createBuildContext(dockerPath string) (io.ReadCloser, error) {
	return archive.TarWithOptions(dockerPath, &archive.TarOptions{})
}

// ensureImageExists checks if the image exists locally, and pulls it if not.
func (c *CodeExecutor) ensureImageExists(ctx context.Context) error {
	images, err := c.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == c.containerConfig.Image {
				log.Debugf("Image %s already exists locally", c.containerConfig.Image)
				return nil
			}
		}
	}

	log.Infof("Image %s not found locally, pulling...", c.containerConfig.Image)
	reader, err := c.client.ImagePull(ctx, c.containerConfig.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", c.containerConfig.Image, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to read image pull output: %w", err)
	}
	return nil
}

// buildDockerImage builds the Docker image from the Dockerfile directory.
func (c *CodeExecutor) buildDockerImage(ctx context.Context) error {
	buildContext, err := createBuildContext(c.dockerFilePath)
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}
	defer buildContext.Close()

	buildResponse, err := c.client.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:   []string{c.containerConfig.Image},
		Remove: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build image: %w", err)
	}
	defer buildResponse.Body.Close()
	if _, err := io.Copy(io.Discard, buildResponse.Body); err != nil {
		log.Warnf("Error reading build output: %v", err)
	}
	log.Infof("Docker image %s built successfully", c.containerConfig.Image)
	return nil
}

// verifyPythonInstallation verifies that python3 is available in the container.
func (c *CodeExecutor) verifyPythonInstallation(ctx context.Context) error {
	execResp, err := c.client.ContainerExecCreate(ctx, c.container.ID, container.ExecOptions{
		Cmd:          []string{"which", "python3"},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create exec for python verification: %w", err)
	}
	hijacked, err := c.client.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return fmt.Errorf("failed to attach to python verification exec: %w", err)
	}
	defer hijacked.Close()

	inspectResp, err := c.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return fmt.Errorf("failed to inspect exec: %w", err)
	}
	if inspectResp.ExitCode != 0 {
		return fmt.Errorf("python3 is not installed in the container")
	}
	return nil
}

// initContainer builds or pulls the image and starts the container.
func (c *CodeExecutor) initContainer() error {
	ctx := context.Background()
	if c.client == nil {
		return fmt.Errorf("docker client is not initialized")
	}
	if c.dockerFilePath != "" {
		if err := c.buildDockerImage(ctx); err != nil {
			return err
		}
	}
	if err := c.ensureImageExists(ctx); err != nil {
		return err
	}

	resp, err := c.client.ContainerCreate(ctx, &c.containerConfig, &c.hostConfig, nil, nil, c.containerName)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	if err := c.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	if err := c.waitForContainerReady(ctx, 60*time.Second, resp.ID); err != nil {
		return fmt.Errorf("container %s did not become ready in time: %w", resp.ID, err)
	}

	containerJSON, err := c.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return fmt.Errorf("failed to inspect container: %w", err)
	}
	if containerJSON.State.Status != "running" {
		return fmt.Errorf("container is not running, status: %s, exit code: %d",
			containerJSON.State.Status, containerJSON.State.ExitCode)
	}

	c.container = &container.Summary{
		ID:    containerJSON.ID,
		Names: []string{containerJSON.Name},
		Image: containerJSON.Image,
		State: containerJSON.State.Status,
	}
	log.Infof("Container %s started successfully", c.container.ID)

	return c.verifyPythonInstallation(ctx)
}

// waitForContainerReady polls the container until it reports running.
func (c *CodeExecutor) waitForContainerReady(ctx context.Context, timeout time.Duration, containerID string) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	timeoutCh := time.After(timeout)

	for {
		select {
		case <-timeoutCh:
			return fmt.Errorf("timeout %v reached while waiting for container %s", timeout, containerID)
		case <-ticker.C:
			containerJSON, err := c.client.ContainerInspect(ctx, containerID)
			if err != nil {
				return fmt.Errorf("failed to inspect container during readiness check: %w", err)
			}
			if containerJSON.State != nil && containerJSON.State.Status == "running" {
				return nil
			}
		}
	}
}

// Close stops the container and releases the Docker client.
func (c *CodeExecutor) Close() error {
	runtime.SetFinalizer(c, nil)
	c.cleanup()
	return nil
}

// cleanup stops the running container. With AutoRemove set the daemon
// removes it once stopped.
func (c *CodeExecutor) cleanup() {
	if c.client == nil || c.container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.client.ContainerStop(ctx, c.container.ID, container.StopOptions{}); err != nil {
		log.Warnf("Failed to stop container %s: %v", c.container.ID, err)
	}
	c.container = nil
}

func generateContainerName() string {
	return "codegraph-executor-" + uuid.NewString()[:8]
}
