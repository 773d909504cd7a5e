package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/agentq/internal/queue"
	"github.com/fyrsmithlabs/agentq/internal/supervisor"
)

// handleClassify reports the task type a prompt would be given.
func (s *Server) handleClassify(c echo.Context) error {
	var req ClassifyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	t, rule := s.classifier.Explain(req.Prompt)
	return c.JSON(http.StatusOK, ClassifyResponse{TaskType: t, Rule: rule})
}

func (s *Server) handleCompose(c echo.Context) error {
	var req ComposeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sup, err := s.supervisor()
	if err != nil {
		return err
	}

	compose := sup.Compose
	if req.WithMarkers {
		compose = sup.ComposeWithMarkers
	}
	out, err := compose(req.Prompt, req.ProjectID)
	if err != nil {
		return configError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleFormat(c echo.Context) error {
	var req FormatRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sup, err := s.supervisor()
	if err != nil {
		return err
	}
	out, err := sup.Format(req.Output, req.ProjectID)
	if err != nil {
		return configError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleValidate(c echo.Context) error {
	var req ValidateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sup, err := s.supervisor()
	if err != nil {
		return err
	}

	var res supervisor.ValidationResult
	if req.ProjectID == "" {
		res = sup.Validate(req.Output)
	} else if res, err = sup.ValidateFor(req.Output, req.ProjectID); err != nil {
		return configError(err)
	}
	return c.JSON(http.StatusOK, ValidateResponse{ProjectID: req.ProjectID, ValidationResult: res})
}

// handleSupervisorConfig returns the effective config for a project, or the
// global config when no project is given.
func (s *Server) handleSupervisorConfig(c echo.Context) error {
	sup, err := s.supervisor()
	if err != nil {
		return err
	}
	cfg, err := sup.GetConfig(c.Param("project_id"))
	if err != nil {
		return configError(err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) supervisor() (*supervisor.Supervisor, error) {
	if s.supervisors == nil || s.supervisorRoot == "" {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "supervisor is not configured")
	}
	sup, err := s.supervisors.Get(s.supervisorRoot)
	if err != nil {
		return nil, fmt.Errorf("opening supervisor: %w", err)
	}
	return sup, nil
}

// configError reports an invalid project id as bad input. Broken config
// files are server-side problems.
func configError(err error) error {
	if errors.Is(err, supervisor.ErrInvalidProjectID) {
		return fmt.Errorf("%w: %v", queue.ErrInvalidInput, err)
	}
	return err
}
