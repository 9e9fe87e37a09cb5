package echoapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/insightlab/insightlab/core"
	"github.com/insightlab/insightlab/core/evaluation"
	"github.com/insightlab/insightlab/core/user"
)

type evaluationApi struct {
	svc    *evaluation.Service
	usrSvc *user.Service
}

func registerEvaluationAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *evaluation.Service, usrSvc *user.Service) {
	api := evaluationApi{svc: svc, usrSvc: usrSvc}

	researcher := roleMiddleware(user.RoleResearcher)

	sg := g.Group("/studies", jwt)
	sg.POST("", api.createStudy, researcher)
	sg.GET("", api.queryStudies)
	sg.GET("/:id", api.retrieveStudy)
	sg.GET("/:id/artifacts", api.queryArtifacts)
	sg.POST("/:id/artifacts", api.createArtifact, researcher)
	sg.GET("/:id/tasks", api.queryTasks)

	tg := g.Group("/tasks", jwt)
	tg.POST("", api.createTask, researcher)
	tg.GET("/:id", api.retrieveTask)
	tg.POST("/:id/criteria", api.addCriteria, researcher)
	tg.POST("/:id/participants", api.addParticipants, researcher)
	tg.GET("/:id/export", api.export, researcher)

	ag := g.Group("/assignments", jwt)
	ag.GET("", api.myAssignments)
	ag.POST("/:id/start", api.start)
	ag.PUT("/:id/scores", api.saveScore)
	ag.POST("/:id/annotations", api.saveAnnotation)
	ag.DELETE("/:id/annotations/:annID", api.deleteAnnotation)
	ag.PUT("/:id/draft", api.saveDraft)
	ag.GET("/:id/draft", api.retrieveDraft)
	ag.POST("/:id/submit", api.submit)
	ag.GET("/:id/submission", api.retrieveSubmission)
}

type (
	NewStudyRequest struct {
		Name              string `json:"name" validate:"required"`
		Description       string `json:"description"`
		QuestionnaireType string `json:"questionnaire_type" validate:"omitempty,oneof=COMPETENCY BACKGROUND"`
	}

	AddParticipantsRequest struct {
		ParticipantIDs []int     `json:"participant_ids" validate:"required,min=1"`
		DueDate        null.Time `json:"due_date"`
	}

	AddCriteriaRequest struct {
		Criteria []evaluation.CriterionDefinition `json:"criteria" validate:"required,min=1"`
	}
)

func (nsr *NewStudyRequest) Validate() error {
	nsr.Name = core.CleanString(nsr.Name)
	if nsr.QuestionnaireType == "" {
		nsr.QuestionnaireType = "BACKGROUND"
	}
	return core.Validate.Struct(nsr)
}

// Handlers

func (api *evaluationApi) createStudy(ctx echo.Context) error {
	var data NewStudyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudyRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	study, err := api.svc.CreateStudy(evaluation.Study{
		Name:              data.Name,
		Description:       data.Description,
		ResearcherID:      ctxUsr.ID,
		QuestionnaireType: data.QuestionnaireType,
	})
	if err != nil {
		return errors.Wrap(err, "creating study")
	}
	return ctx.JSON(http.StatusCreated, study)
}

func (api *evaluationApi) queryStudies(ctx echo.Context) error {
	studies, err := api.svc.Studies()
	if err != nil {
		return errors.Wrap(err, "querying studies")
	}
	return ctx.JSON(http.StatusOK, studies)
}

func (api *evaluationApi) retrieveStudy(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	study, err := api.svc.GetStudy(id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, study)
}

func (api *evaluationApi) queryArtifacts(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	artifacts, err := api.svc.StudyArtifacts(id)
	if err != nil {
		return errors.Wrap(err, "querying artifacts")
	}
	return ctx.JSON(http.StatusOK, artifacts)
}

func (api *evaluationApi) createArtifact(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	var artifact evaluation.Artifact
	if err := ctx.Bind(&artifact); err != nil {
		return errors.Wrap(err, "binding to Artifact")
	}
	artifact.StudyID = id

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	artifact, err = api.svc.CreateArtifact(ctxUsr, artifact)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, artifact)
}

func (api *evaluationApi) queryTasks(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	tasks, err := api.svc.FilterTasks(id)
	if err != nil {
		return errors.Wrap(err, "querying tasks")
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *evaluationApi) createTask(ctx echo.Context) error {
	var data evaluation.NewTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTask")
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	task, err := api.svc.CreateTask(ctxUsr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, task)
}

// retrieveTask returns the blinding-aware task detail.
func (api *evaluationApi) retrieveTask(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	detail, err := api.svc.GetTaskDetail(id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *evaluationApi) addCriteria(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	var data AddCriteriaRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddCriteriaRequest")
	}
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	task, err := api.svc.AddCriteria(id, data.Criteria...)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, task)
}

func (api *evaluationApi) addParticipants(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	var data AddParticipantsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddParticipantsRequest")
	}
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	assignments, err := api.svc.AddParticipants(id, ctxUsr, data.ParticipantIDs, data.DueDate)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, assignments)
}

func (api *evaluationApi) export(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rows, err := api.svc.ExportRows(id, ctxUsr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *evaluationApi) myAssignments(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	assignments, err := api.svc.ParticipantAssignments(ctxUsr.ID, ctx.QueryParam("status"))
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *evaluationApi) start(ctx echo.Context) error {
	id, ctxUsr, err := api.assignmentContext(ctx)
	if err != nil {
		return err
	}

	assignment, err := api.svc.Start(id, ctxUsr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, assignment)
}

func (api *evaluationApi) saveScore(ctx echo.Context) error {
	id, ctxUsr, err := api.assignmentContext(ctx)
	if err != nil {
		return err
	}

	var data evaluation.NewScore
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewScore")
	}

	score, err := api.svc.SaveScore(id, ctxUsr.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, score)
}

func (api *evaluationApi) saveAnnotation(ctx echo.Context) error {
	id, ctxUsr, err := api.assignmentContext(ctx)
	if err != nil {
		return err
	}

	var data evaluation.NewAnnotation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnnotation")
	}

	annotation, err := api.svc.SaveAnnotation(id, ctxUsr.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, annotation)
}

func (api *evaluationApi) deleteAnnotation(ctx echo.Context) error {
	annID, err := intParam(ctx, "annID")
	if err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.DeleteAnnotation(annID, ctxUsr.ID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *evaluationApi) saveDraft(ctx echo.Context) error {
	id, ctxUsr, err := api.assignmentContext(ctx)
	if err != nil {
		return err
	}

	var content json.RawMessage
	if err := ctx.Bind(&content); err != nil {
		return errors.Wrap(err, "binding draft content")
	}

	draft, err := api.svc.SaveDraft(id, ctxUsr.ID, content)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, draft)
}

func (api *evaluationApi) retrieveDraft(ctx echo.Context) error {
	id, ctxUsr, err := api.assignmentContext(ctx)
	if err != nil {
		return err
	}

	draft, err := api.svc.GetDraft(id, ctxUsr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, draft)
}

func (api *evaluationApi) submit(ctx echo.Context) error {
	id, ctxUsr, err := api.assignmentContext(ctx)
	if err != nil {
		return err
	}

	var data evaluation.SubmissionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmissionRequest")
	}

	submission, err := api.svc.Submit(id, ctxUsr.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, submission)
}

func (api *evaluationApi) retrieveSubmission(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	// participants may only read their own submission
	if ctxUsr.IsParticipant() {
		if _, err = api.svc.GetAssignment(id, ctxUsr.ID); err != nil {
			return err
		}
	}

	submission, err := api.svc.GetSubmission(id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, submission)
}

func (api *evaluationApi) assignmentContext(ctx echo.Context) (int, user.User, error) {
	id, err := intParam(ctx, "id")
	if err != nil {
		return 0, user.User{}, err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return 0, user.User{}, errors.Wrap(err, "getting context user")
	}
	return id, ctxUsr, nil
}

func intParam(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}
