package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func setupPaymentRouter() (*gin.Engine, *PaymentHandler) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	// Services are never reached by the parameter validation paths under test
	handler := NewPaymentHandler(nil, nil, logger)
	router := gin.New()
	router.POST("/api/v1/payments/:ownerType/:ownerID/intent", handler.CreateIntent)
	router.GET("/api/v1/payments/:ownerType/:ownerID/check", handler.CheckPayment)
	router.DELETE("/api/v1/payments/:ownerType/:ownerID/intent", handler.CancelIntent)
	return router, handler
}

func TestPaymentHandler_InvalidOwnerParams(t *testing.T) {
	router, _ := setupPaymentRouter()

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"Unknown owner type on create", "POST", "/api/v1/payments/invoice/42/intent"},
		{"Unknown owner type on check", "GET", "/api/v1/payments/invoice/42/check"},
		{"Unknown owner type on cancel", "DELETE", "/api/v1/payments/invoice/42/intent"},
		{"Non-numeric owner id", "POST", "/api/v1/payments/order/abc/intent"},
		{"Negative owner id", "GET", "/api/v1/payments/order/-1/check"},
		{"Zero owner id", "GET", "/api/v1/payments/booking/0/check"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
