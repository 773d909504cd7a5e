package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentq/internal/logging"
	"github.com/fyrsmithlabs/agentq/internal/orchestrator"
	"github.com/fyrsmithlabs/agentq/internal/queue"
)

// handleCreateTask enqueues a task. With a dispatcher configured the task is
// submitted through it so the project is remembered for the thread.
func (s *Server) handleCreateTask(c echo.Context) error {
	var req CreateTaskRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	var (
		task *queue.Task
		err  error
	)
	if s.dispatcher != nil {
		task, err = s.dispatcher.Submit(ctx, orchestrator.SubmitRequest{
			TaskGroupID: req.TaskGroupID,
			Prompt:      req.Prompt,
			TaskType:    req.TaskType,
			WorkingDir:  req.WorkingDir,
			ProjectID:   req.ProjectID,
		})
	} else {
		task, err = s.enqueue(c, req)
	}
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/tasks/"+task.ID)
	return c.JSON(http.StatusCreated, newTaskResponse(task))
}

func (s *Server) enqueue(c echo.Context, req CreateTaskRequest) (*queue.Task, error) {
	ctx := c.Request().Context()
	taskType := req.TaskType
	if taskType == "" {
		taskType = s.classifier.Classify(req.Prompt)
	}
	id, err := s.store.Enqueue(ctx, &queue.EnqueueRequest{
		TaskGroupID: req.TaskGroupID,
		Prompt:      req.Prompt,
		TaskType:    taskType,
		WorkingDir:  req.WorkingDir,
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetItem(ctx, id)
}

// handleGetTask returns one task.
func (s *Server) handleGetTask(c echo.Context) error {
	task, err := s.store.GetItem(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newTaskResponse(task))
}

// handleListGroup returns every task in a thread, oldest first.
func (s *Server) handleListGroup(c echo.Context) error {
	groupID := c.Param("id")
	filter := queue.ListFilter{TaskGroupID: groupID}
	if st := c.QueryParam("status"); st != "" {
		status, err := queue.ParseStatus(st)
		if err != nil {
			return err
		}
		filter.Status = status
	}

	tasks, err := s.store.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	resp := TaskListResponse{TaskGroupID: groupID, Tasks: make([]TaskResponse, 0, len(tasks))}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, newTaskResponse(t))
	}
	return c.JSON(http.StatusOK, resp)
}

// handleUpdateStatus applies a status transition. Output and error text are
// scrubbed before they are stored.
func (s *Server) handleUpdateStatus(c echo.Context) error {
	var req UpdateStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	id := c.Param("id")
	ctx := logging.WithTaskID(c.Request().Context(), id)

	update := &queue.StatusUpdate{
		Output:          s.scrub(c, "output", req.Output),
		Error:           s.scrub(c, "error", req.Error),
		FilesModified:   req.FilesModified,
		VerifiedFiles:   req.VerifiedFiles,
		UnverifiedFiles: req.UnverifiedFiles,
		DurationMS:      req.DurationMS,
	}
	if err := s.store.UpdateStatus(ctx, id, req.Status, update); err != nil {
		return err
	}
	return s.respondTask(c, id)
}

// handleSetAwaiting parks a RUNNING task on a clarification question.
func (s *Server) handleSetAwaiting(c echo.Context) error {
	var req SetAwaitingRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	id := c.Param("id")
	ctx := logging.WithTaskID(c.Request().Context(), id)

	cl := queue.Clarification{
		Question: req.Question,
		Type:     req.Type,
		Options:  req.Options,
		Context:  req.Context,
	}
	output := req.Output
	if o := s.scrub(c, "output", &output); o != nil {
		output = *o
	}
	if err := s.store.SetAwaitingResponse(ctx, id, cl, nil, output); err != nil {
		return err
	}
	return s.respondTask(c, id)
}

// handleReply answers a pending clarification. When the reply moves the task
// straight back to RUNNING and a dispatcher is configured, the task is
// handed to it for processing.
func (s *Server) handleReply(c echo.Context) error {
	var req ReplyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	id := c.Param("id")
	ctx := logging.WithTaskID(c.Request().Context(), id)

	res, err := s.store.Reply(ctx, id, req.Reply)
	if err != nil {
		return err
	}

	resp := ReplyResponse{ReplyResult: *res, ShowReplyUI: res.NewStatus == queue.StatusAwaitingResponse}
	if res.NewStatus == queue.StatusRunning && s.dispatcher != nil {
		s.dispatcher.Resume(id)
		resp.Resumed = true
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) respondTask(c echo.Context, id string) error {
	task, err := s.store.GetItem(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newTaskResponse(task))
}

func (s *Server) scrub(c echo.Context, field string, v *string) *string {
	if v == nil || *v == "" || !s.scrubber.Enabled() {
		return v
	}
	res := s.scrubber.Scrub(*v)
	if res.HasFindings() {
		s.logger.Warn(c.Request().Context(), "secrets redacted from request",
			zap.String("field", field),
			zap.Strings("rules", res.RuleIDs()),
		)
	}
	return &res.Scrubbed
}
