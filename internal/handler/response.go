package handler

import "github.com/esante/rdv-service/internal/model"

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

type PaginatedResponse struct {
	Status     string            `json:"status"`
	Data       interface{}       `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
}

func NewPaginatedResponse(data interface{}, pagination *model.Pagination) *PaginatedResponse {
	return &PaginatedResponse{
		Status:     "success",
		Data:       data,
		Pagination: pagination,
	}
}
