//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

// Package local provides a CodeExecutor that runs block source in the
// local environment. It supports Python and Bash, executing them as
// child processes and streaming their output as it is produced.
package local

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/opencodeblocks/codegraph-go/codeexecutor"
	"github.com/opencodeblocks/codegraph-go/event"
	"github.com/opencodeblocks/codegraph-go/log"
)

// CodeExecutor unsafely executes code on the local machine.
type CodeExecutor struct {
	WorkDir        string        // Working directory for code execution
	Timeout        time.Duration // Timeout for a single run
	CleanTempFiles bool          // Whether to clean temporary files after execution
}

// CodeExecutorOption defines a function type for configuring CodeExecutor.
type CodeExecutorOption func(*CodeExecutor)

// WithWorkDir sets the working directory for code execution.
func WithWorkDir(workDir string) CodeExecutorOption {
	return func(l *CodeExecutor) {
		l.WorkDir = workDir
	}
}

// WithTimeout sets the timeout for code execution.
func WithTimeout(timeout time.Duration) CodeExecutorOption {
	return func(l *CodeExecutor) {
		l.Timeout = timeout
	}
}

// WithCleanTempFiles sets whether to clean temporary files after execution.
func WithCleanTempFiles(clean bool) CodeExecutorOption {
	return func(l *CodeExecutor) {
		l.CleanTempFiles = clean
	}
}

// New creates a new CodeExecutor with the given options.
func New(options ...CodeExecutorOption) *CodeExecutor {
	executor := &CodeExecutor{
		Timeout:        30 * time.Second,
		CleanTempFiles: true,
	}
	for _, option := range options {
		option(executor)
	}
	return executor
}

// ExecuteCode runs the source locally, streaming stdout and stderr
// fragments through emit as they arrive. Images written into the
// working directory during the run are collected afterwards.
func (e *CodeExecutor) ExecuteCode(
	ctx context.Context,
	input codeexecutor.CodeExecutionInput,
	emit codeexecutor.EmitFunc,
) (codeexecutor.CodeExecutionResult, error) {
	workDir, cleanup, err := e.resolveWorkDir(input.ExecutionID)
	if err != nil {
		return codeexecutor.CodeExecutionResult{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	filePath, err := e.prepareCodeFile(workDir, input)
	if err != nil {
		return codeexecutor.CodeExecutionResult{}, err
	}
	if e.CleanTempFiles {
		defer func() {
			if removeErr := os.Remove(filePath); removeErr != nil {
				log.Warnf("Failed to remove temp file %s: %v", filePath, removeErr)
			}
		}()
	}

	cmdArgs := buildCommandArgs(input.Language, filePath)
	if len(cmdArgs) == 0 {
		return codeexecutor.CodeExecutionResult{}, fmt.Errorf("unsupported language: %s", input.Language)
	}

	output, err := e.streamCommand(ctx, workDir, cmdArgs, input, emit)
	if err != nil {
		return codeexecutor.CodeExecutionResult{}, err
	}

	images := collectImages(workDir, input, emit)
	return codeexecutor.CodeExecutionResult{Output: output, Images: images}, nil
}

// resolveWorkDir returns the directory runs execute in and an
// optional cleanup function for temporary directories.
func (e *CodeExecutor) resolveWorkDir(executionID string) (string, func(), error) {
	if e.WorkDir != "" {
		workDir := e.WorkDir
		if !filepath.IsAbs(workDir) {
			if abs, err := filepath.Abs(workDir); err == nil {
				workDir = abs
			}
		}
		if err := os.MkdirAll(workDir, 0755); err != nil {
			return "", nil, fmt.Errorf("failed to create work directory: %w", err)
		}
		// Never cleanup user-specified work directories.
		return workDir, nil, nil
	}
	tempDir, err := os.MkdirTemp("", "codeexec_"+executionID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	if !e.CleanTempFiles {
		return tempDir, nil, nil
	}
	return tempDir, func() { os.RemoveAll(tempDir) }, nil
}

// prepareCodeFile writes the source to disk and returns the file path.
func (e *CodeExecutor) prepareCodeFile(workDir string, input codeexecutor.CodeExecutionInput) (string, error) {
	var filename string
	var fileMode os.FileMode = 0644
	switch strings.ToLower(input.Language) {
	case "python", "py", "python3", "":
		filename = fmt.Sprintf("block_%s.py", input.ExecutionID)
	case "bash", "sh":
		filename = fmt.Sprintf("block_%s.sh", input.ExecutionID)
		fileMode = 0755
	default:
		return "", fmt.Errorf("unsupported language: %s", input.Language)
	}
	filePath := filepath.Join(workDir, filename)
	if err := os.WriteFile(filePath, []byte(input.Code), fileMode); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", filePath, err)
	}
	return filePath, nil
}

func buildCommandArgs(language, filePath string) []string {
	switch strings.ToLower(language) {
	case "python", "py", "python3", "":
		return []string{"python3", filePath}
	case "bash", "sh":
		return []string{"bash", filePath}
	default:
		return nil
	}
}

// streamCommand runs the command, forwarding stdout and stderr
// fragments through emit while accumulating the combined output.
func (e *CodeExecutor) streamCommand(
	ctx context.Context,
	workDir string,
	cmdArgs []string,
	input codeexecutor.CodeExecutionInput,
	emit codeexecutor.EmitFunc,
) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, cmdArgs[0], cmdArgs[1:]...) //nolint:gosec
	cmd.Dir = workDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start command %s: %w", strings.Join(cmdArgs, " "), err)
	}

	var mu sync.Mutex
	var output strings.Builder
	var wg sync.WaitGroup
	consume := func(r io.Reader) {
		defer wg.Done()
		buf := make([]byte, 1024)
		for {
			n, readErr := r.Read(buf)
			if n > 0 {
				chunk := string(buf[:n])
				mu.Lock()
				output.WriteString(chunk)
				mu.Unlock()
				if emit != nil {
					emit(event.NewStdout(input.BlockID, chunk, event.WithExecutionID(input.ExecutionID)))
				}
			}
			if readErr != nil {
				return
			}
		}
	}
	wg.Add(2)
	go consume(stdout)
	go consume(stderr)
	wg.Wait()

	// Executed code failing is ordinary output, not a worker error.
	if waitErr := cmd.Wait(); waitErr != nil {
		if timeoutCtx.Err() != nil {
			return output.String(), fmt.Errorf("execution interrupted: %w", timeoutCtx.Err())
		}
		log.Debugf("command %s exited: %v", strings.Join(cmdArgs, " "), waitErr)
	}
	return output.String(), nil
}

// collectImages gathers PNG files produced in the working directory
// and emits them as image events.
func collectImages(workDir string, input codeexecutor.CodeExecutionInput, emit codeexecutor.EmitFunc) []string {
	matches, err := filepath.Glob(filepath.Join(workDir, "*.png"))
	if err != nil {
		return nil
	}
	var images []string
	for _, path := range matches {
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			log.Warnf("Failed to read image %s: %v", path, readErr)
			continue
		}
		encoded := base64.StdEncoding.EncodeToString(raw)
		images = append(images, encoded)
		if emit != nil {
			emit(event.NewImage(input.BlockID, encoded, event.WithExecutionID(input.ExecutionID)))
		}
	}
	return images
}
