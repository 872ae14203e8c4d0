package acceptance

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shiyuan-lin/carpool-api/config"
	"github.com/shiyuan-lin/carpool-api/controllers"
	"github.com/shiyuan-lin/carpool-api/middleware"
	"github.com/shiyuan-lin/carpool-api/models"
	"github.com/shiyuan-lin/carpool-api/services"
	"github.com/shiyuan-lin/carpool-api/tests/testutil"
)

// APIAcceptanceTestSuite exercises the HTTP API through a real server as
// an external client would
type APIAcceptanceTestSuite struct {
	suite.Suite
	server *httptest.Server
	db     *gorm.DB
	tokens *services.TokenService
}

// SetupSuite runs once before all tests
func (suite *APIAcceptanceTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	os.Setenv("GO_ENV", "test")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	suite.NoError(err)
	suite.db = db
	suite.NoError(db.AutoMigrate(
		&models.User{},
		&models.Vehicle{},
		&models.Order{},
		&models.OrderParticipant{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
	))
	config.SetDB(db)

	suite.tokens = services.NewTokenService(testutil.TestConfig())

	router := gin.New()
	router.GET("/api/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Carpool API is running"})
	})
	authed := router.Group("/api/v1", middleware.RequireAuth(suite.tokens))
	{
		authed.POST("/orders", controllers.CreateOrder)
		authed.GET("/orders/:id", controllers.GetOrder)
		authed.GET("/conversations", controllers.ListConversations)
	}
	suite.server = httptest.NewServer(router)
}

// TearDownSuite runs once after all tests
func (suite *APIAcceptanceTestSuite) TearDownSuite() {
	suite.server.Close()
	sqlDB, err := suite.db.DB()
	if err == nil {
		sqlDB.Close()
	}
}

func (suite *APIAcceptanceTestSuite) TestHealthEndpoint() {
	resp, err := http.Get(suite.server.URL + "/api/v1/health")
	suite.NoError(err)
	defer resp.Body.Close()

	suite.Equal(http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	suite.NoError(err)
	var response struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	suite.NoError(json.Unmarshal(body, &response))
	suite.True(response.Success)
	suite.Equal("Carpool API is running", response.Message)
}

func (suite *APIAcceptanceTestSuite) TestProtectedRoutesRequireToken() {
	resp, err := http.Get(suite.server.URL + "/api/v1/conversations")
	suite.NoError(err)
	defer resp.Body.Close()
	suite.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (suite *APIAcceptanceTestSuite) TestCreateAndFetchOrder() {
	user := models.User{Username: "acceptance"}
	suite.NoError(suite.db.Create(&user).Error)
	token, err := suite.tokens.IssueToken(user.ID, time.Hour)
	suite.NoError(err)

	payload, _ := json.Marshal(map[string]interface{}{
		"order_type":         "person_find_car",
		"start_loc":          "Campus",
		"dest_loc":           "Station",
		"start_time":         time.Now().Add(time.Hour).Format(time.RFC3339),
		"price":              12.5,
		"travel_partner_num": 1,
	})
	req, _ := http.NewRequest("POST", suite.server.URL+"/api/v1/orders", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	suite.NoError(err)
	defer resp.Body.Close()
	suite.Equal(http.StatusCreated, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	suite.NoError(err)
	var envelope struct {
		Data struct {
			Order struct {
				ID     uint   `json:"id"`
				Status string `json:"status"`
			} `json:"order"`
			ConversationID uint `json:"conversation_id"`
		} `json:"data"`
	}
	suite.NoError(json.Unmarshal(body, &envelope))
	suite.Equal("not-started", envelope.Data.Order.Status)
	suite.NotZero(envelope.Data.ConversationID)

	// Fetch it back.
	req, _ = http.NewRequest("GET", suite.server.URL+"/api/v1/orders/1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	suite.NoError(err)
	defer resp.Body.Close()
	suite.Equal(http.StatusOK, resp.StatusCode)
}

func TestAPIAcceptanceTestSuite(t *testing.T) {
	testutil.RequireTestEnvironment(t)
	suite.Run(t, new(APIAcceptanceTestSuite))
}
