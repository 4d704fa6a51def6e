package controller

import (
	"pseudo_practice_backend/internal/model"
	"pseudo_practice_backend/internal/service"
	"pseudo_practice_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SubmissionController struct {
	submissionService *service.SubmissionService
}

func NewSubmissionController(submissionService *service.SubmissionService) *SubmissionController {
	return &SubmissionController{submissionService: submissionService}
}

type SubmitSolutionRequest struct {
	Solution []model.SolutionLine `json:"solution" binding:"required"`
}

type HintRequest struct {
	Message string `json:"message" binding:"max=2000"`
}

type HintResponse struct {
	HintHistory []model.HintMessage `json:"hintHistory"`
}

// SubmitSolution 提交伪代码并获取评测结果
// @Summary 提交伪代码
// @Tags Practice
// @Accept json
// @Produce json
// @Param questionId path string true "题目ID"
// @Param request body SubmitSolutionRequest true "伪代码"
// @Success 200 {object} util.Response{data=model.ProgressDocument}
// @Router /api/questions/{questionId}/submissions [post]
func (c *SubmissionController) SubmitSolution(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req SubmitSolutionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	doc, err := c.submissionService.SubmitSolution(ctx.Request.Context(), user.UserID, ctx.Param("questionId"), req.Solution)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, doc)
}

// RequestHint 请求下一条提示，message 可选
// @Summary 获取提示
// @Tags Practice
// @Accept json
// @Produce json
// @Param questionId path string true "题目ID"
// @Param request body HintRequest false "学生的问题"
// @Success 200 {object} util.Response{data=HintResponse}
// @Router /api/questions/{questionId}/hints [post]
func (c *SubmissionController) RequestHint(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req HintRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	history, err := c.submissionService.RequestHint(ctx.Request.Context(), user.UserID, ctx.Param("questionId"), req.Message)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, HintResponse{HintHistory: history})
}

// GetProgress 获取某次作答的完整进度文档
// @Summary 获取作答进度
// @Tags Practice
// @Produce json
// @Param attemptId path string true "作答ID"
// @Success 200 {object} util.Response{data=model.ProgressDocument}
// @Router /api/progress/{attemptId} [get]
func (c *SubmissionController) GetProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	doc, err := c.submissionService.GetProgress(ctx.Request.Context(), user.UserID, ctx.Param("attemptId"))
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, doc)
}
