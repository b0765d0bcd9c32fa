package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/skin-analyzer/internal/emitter"
	"github.com/menta2k/skin-analyzer/internal/history"
	"github.com/menta2k/skin-analyzer/pkg/analyzer"
	"github.com/menta2k/skin-analyzer/pkg/presenter"
	"github.com/menta2k/skin-analyzer/pkg/processing"
	"github.com/menta2k/skin-analyzer/pkg/remote"
	"github.com/menta2k/skin-analyzer/pkg/types"
)

// multipart overhead allowed on top of the image limit
const formOverhead = 64 * 1024

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "provider": s.deps.Analysis.Provider()})
}

// readUpload returns the bytes of the "image" form field. Oversized uploads are
// truncated one byte past the limit so the analysis client reports them.
func (s *Server) readUpload(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes+formOverhead)

	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, types.InvalidImagef("image exceeds %d bytes", s.opts.MaxUploadBytes)
		}
		return nil, types.InvalidImagef("missing image field: %v", err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.opts.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, nil
}

func (s *Server) analyze(c *gin.Context) {
	data, err := s.readUpload(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	if checkQuality, _ := strconv.ParseBool(c.Query("check_quality")); checkQuality {
		report, err := s.inspect(data)
		if err != nil {
			s.fail(c, err)
			return
		}
		if !report.Ready {
			c.JSON(http.StatusBadRequest, remote.NewErrorResponse(
				"Image quality is not sufficient for analysis",
				fmt.Sprintf("lighting %s, position %s", report.Verdict.Lighting, report.Verdict.Position),
				s.deps.Presenter.Guidance(report.Verdict, report.Sample)...))
			return
		}
	}

	result, err := s.deps.Analysis.AnalyzeBytes(c.Request.Context(), data)
	if err != nil {
		s.publish(c, emitter.FailureEvent("", history.OriginUpload, err))
		s.fail(c, err)
		return
	}

	if err := s.deps.History.Save(c.Request.Context(), history.OriginUpload, result); err != nil {
		s.logger.Warn("Failed to store result", zap.String("id", result.ID), zap.Error(err))
	}
	s.publish(c, emitter.ResultEvent("", history.OriginUpload, result))

	c.JSON(http.StatusOK, remote.NewResponse(result))
}

func (s *Server) publish(c *gin.Context, ev emitter.Event) {
	if err := s.deps.Publisher.Publish(c.Request.Context(), ev); err != nil {
		s.logger.Warn("Failed to publish event", zap.String("type", ev.Type), zap.Error(err))
	}
}

func (s *Server) inspect(data []byte) (analyzer.Report, error) {
	img, err := processing.DecodeBytes(data)
	if err != nil {
		return analyzer.Report{}, types.InvalidImagef("%v", err)
	}
	return s.deps.Inspector.Inspect(img)
}

// qualityResponse is the body of POST /quality
type qualityResponse struct {
	analyzer.Report
	Guidance []string `json:"guidance"`
}

func (s *Server) quality(c *gin.Context) {
	data, err := s.readUpload(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	report, err := s.inspect(data)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, qualityResponse{
		Report:   report,
		Guidance: s.deps.Presenter.Guidance(report.Verdict, report.Sample),
	})
}

func (s *Server) listHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, remote.NewErrorResponse("Invalid limit", c.Query("limit")))
		return
	}
	entries, err := s.deps.History.List(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, remote.NewErrorResponse("Failed to list history", ""))
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) lookup(c *gin.Context) (*history.Entry, bool) {
	e, err := s.deps.History.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, history.ErrNotFound):
		c.JSON(http.StatusNotFound, remote.NewErrorResponse("Result not found", c.Param("id")))
		return nil, false
	case err != nil:
		s.logger.Error("Failed to load result", zap.Error(err))
		c.JSON(http.StatusInternalServerError, remote.NewErrorResponse("Failed to load result", ""))
		return nil, false
	}
	return e, true
}

func (s *Server) getHistory(c *gin.Context) {
	if e, ok := s.lookup(c); ok {
		c.JSON(http.StatusOK, e)
	}
}

func (s *Server) displayHistory(c *gin.Context) {
	e, ok := s.lookup(c)
	if !ok {
		return
	}
	if c.Query("format") == "text" {
		var buf bytes.Buffer
		if err := presenter.WriteText(&buf, s.deps.Presenter.Present(e.Result)); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
		return
	}
	c.JSON(http.StatusOK, s.deps.Presenter.Present(e.Result))
}

// fail maps the error taxonomy onto HTTP answers
func (s *Server) fail(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Analysis request failed", zap.Error(err))
	}
	c.JSON(status, body)
}

func errorResponse(err error) (int, remote.Response) {
	var pe *types.ProviderError
	switch {
	case errors.Is(err, types.ErrInvalidImage):
		if errors.As(err, &pe) {
			return http.StatusBadRequest, remote.NewErrorResponse("Image rejected by provider", pe.Message, pe.Suggestions...)
		}
		return http.StatusBadRequest, remote.NewErrorResponse("Invalid image", err.Error(),
			"Use a JPEG, PNG or WebP photo under 5MB with each side between 200 and 4096 pixels")
	case errors.Is(err, types.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, remote.NewErrorResponse("Analysis provider unavailable", err.Error())
	case errors.Is(err, types.ErrNetwork):
		return http.StatusGatewayTimeout, remote.NewErrorResponse("Analysis provider unreachable", err.Error())
	case errors.As(err, &pe), errors.Is(err, types.ErrMalformedResponse):
		return http.StatusBadGateway, remote.NewErrorResponse("Analysis provider error", err.Error())
	default:
		return http.StatusInternalServerError, remote.NewErrorResponse("Internal error", "")
	}
}
