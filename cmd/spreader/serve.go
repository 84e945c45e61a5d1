package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreader/packages/spreadsheet"
)

const ApiVersion = "v1"

var listenAddr string

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve one sheet over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gin.SetMode(gin.ReleaseMode)
			logger := newLogger(cmd.ErrOrStderr())
			api := NewApiController(spreadsheet.NewSheet(spreadsheet.WithLogger(logger)))
			logger.Info("listening", slog.String("addr", listenAddr))
			return http.ListenAndServe(listenAddr, SetupRouter(api))
		},
	}
	cmd.Flags().StringVar(&listenAddr, "addr", ":8080", "Address to listen on")
	return cmd
}

// ApiController serves one sheet. every request holds the lock for its whole
// duration.
type ApiController struct {
	mu    sync.Mutex
	sheet *spreadsheet.Sheet
}

func NewApiController(sheet *spreadsheet.Sheet) *ApiController {
	return &ApiController{sheet: sheet}
}

type CellEndpointParams struct {
	Cell string `uri:"cell" binding:"required"`
}

type AxisRequest struct {
	Index uint32 `json:"index"`
	Count uint32 `json:"count"`
}

func SetupRouter(api *ApiController) *gin.Engine {
	router := gin.New()

	group := router.Group("/api/" + ApiVersion)
	group.GET("/sheet", api.GetSheetAction)
	group.GET("/cells/:cell", api.GetCellAction)
	group.POST("/cells/:cell", api.SetCellAction)
	group.DELETE("/cells/:cell", api.ClearCellAction)
	group.POST("/rows/:op", api.AxisAction(true))
	group.POST("/columns/:op", api.AxisAction(false))

	router.GET("/healthcheck", func(c *gin.Context) {
		c.String(http.StatusOK, "health")
	})
	router.NoRoute(func(c *gin.Context) {
		respond(c, http.StatusNotFound, gin.H{"error": "not found"})
	})
	return router
}

// respond writes body as JSON through sonic
func respond(c *gin.Context, status int, body any) {
	data, err := sonic.Marshal(body)
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(status, "application/json; charset=utf-8", data)
}

// respondError maps engine faults to HTTP statuses
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, spreadsheet.ErrValidation), errors.Is(err, spreadsheet.ErrStructural):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, spreadsheet.ErrUsage):
		status = http.StatusConflict
	}
	respond(c, status, gin.H{"error": err.Error()})
}

func (api *ApiController) cellParam(c *gin.Context) (spreadsheet.Point, bool) {
	params := CellEndpointParams{}
	if err := c.ShouldBindUri(&params); err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
		return spreadsheet.Point{}, false
	}
	p, ok := spreadsheet.ParsePoint(params.Cell)
	if !ok {
		respond(c, http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("invalid cell address %q", params.Cell)})
		return spreadsheet.Point{}, false
	}
	return p, true
}

func (api *ApiController) GetSheetAction(c *gin.Context) {
	api.mu.Lock()
	defer api.mu.Unlock()

	dump, err := dumpSheet(api.sheet)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, dump)
}

func (api *ApiController) GetCellAction(c *gin.Context) {
	p, ok := api.cellParam(c)
	if !ok {
		return
	}
	api.mu.Lock()
	defer api.mu.Unlock()

	cell, err := describeCell(api.sheet, p)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, cell)
}

// SetCellAction takes {"value": ...} or {"formula": "..."}. error values are
// written as {"value": {"error": code}}.
func (api *ApiController) SetCellAction(c *gin.Context) {
	p, ok := api.cellParam(c)
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var request map[string]any
	if err := sonic.Unmarshal(body, &request); err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	if formula, isFormula := request["formula"]; isFormula {
		text, ok := formula.(string)
		if !ok {
			respond(c, http.StatusUnprocessableEntity, gin.H{"error": "formula must be a string"})
			return
		}
		err = api.sheet.SetFormula(p, text)
	} else if raw, isValue := request["value"]; isValue {
		var value any
		if value, err = decodeValue(raw); err == nil {
			err = api.sheet.SetValue(p, value)
		}
	} else {
		respond(c, http.StatusUnprocessableEntity, gin.H{"error": "body needs a value or a formula"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	cell, err := describeCell(api.sheet, p)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, cell)
}

func (api *ApiController) ClearCellAction(c *gin.Context) {
	p, ok := api.cellParam(c)
	if !ok {
		return
	}
	api.mu.Lock()
	defer api.mu.Unlock()

	if err := api.sheet.Clear(p); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AxisAction serves insert and delete for rows or columns
func (api *ApiController) AxisAction(vertical bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		request := AxisRequest{}
		if err := sonic.Unmarshal(body, &request); err != nil {
			respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		api.mu.Lock()
		defer api.mu.Unlock()

		var op func(index, count uint32) error
		switch {
		case c.Param("op") == "insert" && vertical:
			op = api.sheet.InsertRows
		case c.Param("op") == "delete" && vertical:
			op = api.sheet.DeleteRows
		case c.Param("op") == "insert":
			op = api.sheet.InsertColumns
		case c.Param("op") == "delete":
			op = api.sheet.DeleteColumns
		default:
			respond(c, http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if err := op(request.Index, request.Count); err != nil {
			respondError(c, err)
			return
		}

		size, err := api.sheet.Size()
		if err != nil {
			respondError(c, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"size": sizeJSON{Width: size.Width, Height: size.Height}})
	}
}

// decodeValue converts a JSON value into a cell scalar
func decodeValue(raw any) (any, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return raw, nil
	}
	code, ok := obj["error"].(float64)
	if !ok || code < 0 || code != float64(uint32(code)) {
		return nil, &spreadsheet.AppError{
			Code:    spreadsheet.InvalidArgument,
			Message: "an error value needs a non-negative integer code",
			Err:     spreadsheet.ErrValidation,
		}
	}
	return spreadsheet.ErrorFromCode(spreadsheet.ErrorCode(code)), nil
}
