package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/krnkiran22/ip-escrow-sub001/internal/database"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	testCreator      = "0x1111111111111111111111111111111111111111"
	testCollaborator = "0x2222222222222222222222222222222222222222"
	testArbiter      = "0x3333333333333333333333333333333333333333"
	testMetaHash     = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

func newTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	projectHandler := NewProjectHandler(db)
	escrowHandler := NewEscrowHandler(db, testArbiter)

	v1 := r.Group("/api/v1")
	v1.POST("/projects", projectHandler.CreateProject)
	v1.GET("/projects/:id", projectHandler.GetProject)
	v1.POST("/escrow/:action/prepare", escrowHandler.Prepare)
	v1.POST("/escrow/:action/confirm", escrowHandler.Confirm)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, wallet string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if wallet != "" {
		req.Header.Set("X-Wallet-Address", wallet)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func createDraftProject(t *testing.T, r *gin.Engine) uint {
	t.Helper()
	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/projects", testCreator, gin.H{
		"title":         "Mobile app design",
		"budget":        "300",
		"metadata_hash": testMetaHash,
		"milestones": []gin.H{
			{"title": "Wireframes", "amount": "100"},
			{"title": "Final screens", "amount": "200"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := resp["data"].(map[string]interface{})
	return uint(data["id"].(float64))
}

func TestCreateProjectEndpoint(t *testing.T) {
	db := newHandlerDB(t)
	r := newTestRouter(db)

	projectID := createDraftProject(t, r)

	var project model.Project
	require.NoError(t, db.First(&project, projectID).Error)
	assert.Equal(t, model.ProjectStatusDraft, project.Status)
	assert.Equal(t, testCreator, project.CreatorAddress)

	// 钱包地址头缺失
	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/projects", "", gin.H{
		"title":         "x",
		"budget":        "1",
		"metadata_hash": testMetaHash,
		"milestones":    []gin.H{{"title": "m", "amount": "1"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 金额之和与预算不一致
	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/projects", testCreator, gin.H{
		"title":         "x",
		"budget":        "500",
		"metadata_hash": testMetaHash,
		"milestones":    []gin.H{{"title": "m", "amount": "1"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEscrowPrepareConfirmFlow(t *testing.T) {
	db := newHandlerDB(t)
	r := newTestRouter(db)
	projectID := createDraftProject(t, r)

	// 非创建者prepare被拒
	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/escrow/create_project/prepare", testCollaborator,
		gin.H{"project_id": projectID})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/escrow/create_project/prepare", testCreator,
		gin.H{"project_id": projectID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "createProject", data["contract_function"])

	// confirm：草稿转open
	txHash := fmt.Sprintf("0x%064x", 1)
	w, resp = doJSON(t, r, http.MethodPost, "/api/v1/escrow/create_project/confirm", testCreator, gin.H{
		"project_id":   projectID,
		"tx_hash":      txHash,
		"block_number": 100,
		"on_chain_id":  7,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, false, data["already_applied"])
	project := data["project"].(map[string]interface{})
	assert.Equal(t, string(model.ProjectStatusOpen), project["status"])

	// 重复confirm幂等
	w, resp = doJSON(t, r, http.MethodPost, "/api/v1/escrow/create_project/confirm", testCreator, gin.H{
		"project_id":   projectID,
		"tx_hash":      txHash,
		"block_number": 100,
		"on_chain_id":  7,
	})
	require.Equal(t, http.StatusOK, w.Code)
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, true, data["already_applied"])

	// 交易哈希格式错误
	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/escrow/create_project/confirm", testCreator, gin.H{
		"project_id": projectID,
		"tx_hash":    "0xnope",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 未知动作
	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/escrow/burn_everything/prepare", testCreator,
		gin.H{"project_id": projectID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetProjectEndpoint(t *testing.T) {
	db := newHandlerDB(t)
	r := newTestRouter(db)
	projectID := createDraftProject(t, r)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/projects/%d", projectID), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/projects/9999", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/projects/abc", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
