package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/womens-health-report-analyzer/internal/domain"
)

// SubprocessClassifier starts one process per request, writes the JSON
// request to its stdin and reads the JSON response from its stdout.
type SubprocessClassifier struct {
	command string
	args    []string
	dir     string
	env     []string
	logger  *logrus.Logger
}

// NewSubprocessClassifier runs "<python> <script>" in dir
func NewSubprocessClassifier(python, script, dir string, logger *logrus.Logger) *SubprocessClassifier {
	if python == "" {
		python = "python"
	}
	return NewCommandClassifier(python, []string{script}, dir, nil, logger)
}

// NewCommandClassifier runs an arbitrary command. Extra env entries are
// appended to the current environment.
func NewCommandClassifier(command string, args []string, dir string, env []string, logger *logrus.Logger) *SubprocessClassifier {
	return &SubprocessClassifier{
		command: command,
		args:    args,
		dir:     dir,
		env:     env,
		logger:  logger,
	}
}

// Classify runs a named model
func (s *SubprocessClassifier) Classify(ctx context.Context, model string, features domain.FeatureVector) (*domain.Classification, error) {
	resp, err := s.run(ctx, Request{Task: TaskClassify, Model: model, Features: features})
	if err != nil {
		return nil, err
	}
	return classificationFrom(resp), nil
}

// Answer runs the question-answering task
func (s *SubprocessClassifier) Answer(ctx context.Context, query string) (string, error) {
	resp, err := s.run(ctx, Request{Task: TaskQA, Query: query})
	if err != nil {
		return "", err
	}
	return resp.Answer, nil
}

func (s *SubprocessClassifier) run(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", domain.ErrClassification, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.command, s.args...)
	cmd.Dir = s.dir
	if len(s.env) > 0 {
		cmd.Env = append(os.Environ(), s.env...)
	}
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.WithFields(logrus.Fields{
		"task":  req.Task,
		"model": req.Model,
	}).Debug("Invoking classification process")

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrClassification, ctxErr)
		}
		return nil, fmt.Errorf("%w: process failed: %v: %s", domain.ErrClassification, err, strings.TrimSpace(stderr.String()))
	}

	return decodeResponse(stdout.Bytes())
}
