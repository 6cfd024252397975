package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/phase"
	"github.com/farmer1st/farmcode/pointer"
	"github.com/farmer1st/farmcode/reconcile"
)

type api struct {
	*echo.Echo

	coord    *farmcode.Coordinator
	pointers pointer.Store
	loop     *reconcile.Loop
	logger   *slog.Logger
}

func newAPI(coord *farmcode.Coordinator, pointers pointer.Store, loop *reconcile.Loop, logger *slog.Logger) *api {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	a := &api{Echo: e, coord: coord, pointers: pointers, loop: loop, logger: logger}

	e.GET("/healthz", a.health)
	e.POST("/workflows", a.createWorkflow)
	e.GET("/workflows", a.listWorkflows)
	e.GET("/workflows/:id", a.getWorkflow)
	e.DELETE("/workflows/:id", a.deleteWorkflow)
	e.POST("/workflows/:id/notify", a.notifyWorkflow)

	return a
}

func (a *api) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type createWorkflowRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Phases      []struct {
		Name      string `json:"name"`
		Role      string `json:"role"`
		CanReject bool   `json:"can_reject"`
	} `json:"phases"`
}

func (a *api) createWorkflow(c echo.Context) error {
	var req createWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	seq := phase.DefaultSequence()
	if len(req.Phases) > 0 {
		seq = make(phase.Sequence, 0, len(req.Phases))
		for _, p := range req.Phases {
			seq = append(seq, phase.Phase{
				Name:      p.Name,
				Role:      phase.Role(p.Role),
				CanReject: p.CanReject,
			})
		}
	}

	p, err := pointer.New(id.NewWorkflowID(), req.Title, req.Description, seq)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := a.pointers.CreatePointer(c.Request().Context(), p); err != nil {
		if errors.Is(err, farmcode.ErrPointerExists) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return err
	}

	a.coord.Track(c.Request().Context(), p.ID)
	return c.JSON(http.StatusCreated, p)
}

func (a *api) listWorkflows(c echo.Context) error {
	opts := pointer.ListOpts{State: pointer.LifecycleState(c.QueryParam("state"))}
	all, err := a.pointers.ListPointers(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"workflows": all, "count": len(all)})
}

func (a *api) getWorkflow(c echo.Context) error {
	workflowID, err := id.ParseWorkflowID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow id")
	}
	p, err := a.pointers.GetPointer(c.Request().Context(), workflowID)
	if err != nil {
		if errors.Is(err, farmcode.ErrPointerNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (a *api) deleteWorkflow(c echo.Context) error {
	workflowID, err := id.ParseWorkflowID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow id")
	}
	a.coord.Untrack(workflowID)
	if err := a.pointers.DeletePointer(c.Request().Context(), workflowID); err != nil {
		if errors.Is(err, farmcode.ErrPointerNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
		}
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type notifyRequest struct {
	Phase   string          `json:"phase"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (a *api) notifyWorkflow(c echo.Context) error {
	workflowID, err := id.ParseWorkflowID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow id")
	}
	var req notifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Phase == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "phase is required")
	}

	accepted, err := a.loop.Notify(c.Request().Context(), workflowID, req.Phase, req.Payload)
	if err != nil {
		if errors.Is(err, farmcode.ErrPointerNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"accepted": accepted})
}
