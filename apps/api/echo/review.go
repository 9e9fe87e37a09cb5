package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/insightlab/insightlab/core"
	"github.com/insightlab/insightlab/core/review"
	"github.com/insightlab/insightlab/core/user"
)

type reviewApi struct {
	svc    *review.Service
	usrSvc *user.Service
}

func registerReviewAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *review.Service, usrSvc *user.Service) {
	api := reviewApi{svc: svc, usrSvc: usrSvc}

	researcher := roleMiddleware(user.RoleResearcher)
	reviewer := roleMiddleware(user.RoleReviewer)

	rg := g.Group("/reviews", jwt)

	// researcher endpoints
	rg.POST("/studies/:id/reviewers", api.assignReviewers, researcher)
	rg.GET("/studies/:id/reviewers", api.studyAssignments, researcher)

	// reviewer endpoints
	rg.GET("/assignments", api.myAssignments, reviewer)
	rg.POST("/assignments/:id/accept", api.accept, reviewer)
	rg.POST("/assignments/:id/decline", api.decline, reviewer)
	rg.POST("/submissions/:id/decision", api.recordDecision, reviewer)
	rg.GET("/studies/:id/dashboard", api.dashboard, reviewer)
	rg.GET("/studies/:id/tasks/:taskID/comparison", api.comparison, reviewer)
	rg.GET("/history", api.history, reviewer)
}

type (
	AssignReviewersRequest struct {
		ReviewerIDs []int `json:"reviewer_ids" validate:"required,min=1"`
	}

	DeclineRequest struct {
		Reason string `json:"reason"`
	}
)

// Handlers

func (api *reviewApi) assignReviewers(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	var data AssignReviewersRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignReviewersRequest")
	}
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	result, err := api.svc.AssignReviewers(id, ctxUsr, data.ReviewerIDs)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, result)
}

func (api *reviewApi) studyAssignments(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	assignments, err := api.svc.StudyAssignments(id, ctxUsr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *reviewApi) myAssignments(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	assignments, err := api.svc.ReviewerAssignments(ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "querying reviewer assignments")
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *reviewApi) accept(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	assignment, err := api.svc.Accept(id, ctxUsr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, assignment)
}

func (api *reviewApi) decline(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	var data DeclineRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DeclineRequest")
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	assignment, err := api.svc.Decline(id, ctxUsr, data.Reason)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, assignment)
}

func (api *reviewApi) recordDecision(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	var data review.Decision
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Decision")
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	result, err := api.svc.RecordDecision(id, ctxUsr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *reviewApi) dashboard(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	filter := new(review.DashboardFilter)
	if err := ctx.Bind(filter); err != nil {
		filter = new(review.DashboardFilter)
	}

	var threshold int
	if raw := ctx.QueryParam("fast_threshold_seconds"); raw != "" {
		threshold, _ = strconv.Atoi(raw)
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	dashboard, err := api.svc.Dashboard(id, ctxUsr, filter, threshold)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, dashboard)
}

func (api *reviewApi) comparison(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	taskID, err := intParam(ctx, "taskID")
	if err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	comparison, err := api.svc.Comparison(id, taskID, ctxUsr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, comparison)
}

func (api *reviewApi) history(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	items, err := api.svc.History(ctxUsr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, items)
}
