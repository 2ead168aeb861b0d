package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/CZERTAINLY/mdsetup/internal/files"
	"github.com/CZERTAINLY/mdsetup/internal/model"
	"github.com/CZERTAINLY/mdsetup/internal/script"
	"github.com/CZERTAINLY/mdsetup/internal/service"
)

const (
	formSnapshot  = "snapshot"
	formFormat    = "format"
	formDirectory = "directory"

	packageName = "openmm_simulation.zip"
)

type ScriptRequest struct {
	Snapshot json.RawMessage   `json:"snapshot"`
	Files    map[string]string `json:"files"`
}

type StartResponse struct {
	JobID   string `json:"jobId"`
	State   string `json:"state"`
	WorkDir string `json:"workDir"`
}

// Script handles POST /api/script, it returns the script for download.
func (s *Server) Script(c *fiber.Ctx) error {
	var req ScriptRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return validationError(c, "Invalid request body")
	}
	if len(req.Snapshot) == 0 {
		return validationError(c, "snapshot is required")
	}
	snap, err := model.DecodeSnapshot(req.Snapshot, formSnapshot, model.FormatJSON)
	if err != nil {
		return validationError(c, err.Error())
	}
	names := make(map[string]string, len(req.Files))
	for role, name := range req.Files {
		safe := files.SecureFilename(name)
		if safe == "" {
			return validationError(c, fmt.Sprintf("invalid file name for %s", role))
		}
		names[role] = safe
	}

	compiled, err := script.Compile(snap, names, script.Options{Date: s.now()})
	if err != nil {
		return compileFailed(c, err)
	}
	c.Attachment(script.FileName)
	c.Set(fiber.HeaderContentType, "text/x-python; charset=utf-8")
	return c.Send(compiled.Bytes())
}

// Package handles POST /api/package, it returns a zip with the script and
// all uploaded input files.
func (s *Server) Package(c *fiber.Ctx) error {
	snap, reg, err := readUpload(c)
	if err != nil {
		return validationError(c, err.Error())
	}
	compiled, err := script.Compile(snap, files.Names(reg), script.Options{Date: s.now()})
	if err != nil {
		return compileFailed(c, err)
	}
	var buf bytes.Buffer
	if err := files.Package(&buf, script.FileName, compiled.Bytes(), reg); err != nil {
		return serviceError(c, err.Error())
	}
	c.Attachment(packageName)
	c.Set(fiber.HeaderContentType, "application/zip")
	return c.Send(buf.Bytes())
}

// StartJob handles POST /api/jobs. The job of the session started before is
// superseded.
func (s *Server) StartJob(c *fiber.Ctx) error {
	snap, reg, err := readUpload(c)
	if err != nil {
		return validationError(c, err.Error())
	}
	workDir := s.svc.WorkDir(c.FormValue(formDirectory))

	sup := s.sessions.Get(sessionID(c))
	job, err := sup.Start(c.UserContext(), snap, reg, workDir)
	if err != nil {
		return compileFailed(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(StartResponse{
		JobID:   job.ID(),
		State:   job.State().String(),
		WorkDir: job.WorkDir(),
	})
}

// Output handles GET /api/jobs/output. It answers 404 once there is no
// more output to wait for.
func (s *Server) Output(c *fiber.Ctx) error {
	sup, ok := s.sessions.Lookup(sessionID(c))
	if !ok {
		return notFound(c, "No simulation started")
	}
	chunk, ok := sup.Poll()
	if !ok {
		return notFound(c, "No simulation output")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(chunk)
}

// Stop handles POST /api/jobs/stop.
func (s *Server) Stop(c *fiber.Ctx) error {
	if sup, ok := s.sessions.Lookup(sessionID(c)); ok {
		sup.Cancel(c.UserContext())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Status handles GET /api/jobs/:id.
func (s *Server) Status(c *fiber.Ctx) error {
	sup, ok := s.sessions.Lookup(sessionID(c))
	if !ok {
		return notFound(c, "Job not found")
	}
	rec, err := sup.Status(c.UserContext(), c.Params("id"))
	if errors.Is(err, service.ErrJobNotFound) {
		return notFound(c, "Job not found")
	}
	if err != nil {
		return serviceError(c, err.Error())
	}
	return c.JSON(rec)
}

// streamOutput pushes the polled output of the session's job as text
// messages and closes the connection once the output is absent.
func (s *Server) streamOutput(conn *websocket.Conn) {
	session, _ := conn.Locals(localsSession).(string)
	sup, ok := s.sessions.Lookup(session)
	if !ok {
		closeConn(conn, "no simulation started")
		return
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		chunk, ok := sup.Poll()
		if chunk != "" {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(chunk)); err != nil {
				slog.Debug("websocket write failed", "session", session, "error", err)
				return
			}
		}
		if !ok {
			closeConn(conn, "end of output")
			return
		}
		select {
		case <-ticker.C:
		case <-s.closing:
			closeConn(conn, "server shutting down")
			return
		}
	}
}

func closeConn(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
}

// readUpload parses a multipart form holding the snapshot and one file per
// input role of its file type. Files under other names are ignored.
func readUpload(c *fiber.Ctx) (model.Snapshot, *files.Set, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return model.Snapshot{}, nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	values := form.Value[formSnapshot]
	if len(values) == 0 || values[0] == "" {
		return model.Snapshot{}, nil, errors.New("snapshot is required")
	}
	format := model.FormatJSON
	if f := form.Value[formFormat]; len(f) > 0 && f[0] != "" {
		format = model.Format(f[0])
	}
	snap, err := model.DecodeSnapshot([]byte(values[0]), formSnapshot, format)
	if err != nil {
		return model.Snapshot{}, nil, err
	}

	reg := files.NewSet()
	for _, role := range snap.FileType.Roles() {
		headers := form.File[role]
		if len(headers) == 0 {
			continue
		}
		h := headers[0]
		f, err := h.Open()
		if err != nil {
			return model.Snapshot{}, nil, fmt.Errorf("opening %s: %w", role, err)
		}
		err = reg.AddReader(role, h.Filename, f)
		_ = f.Close()
		if err != nil {
			return model.Snapshot{}, nil, err
		}
	}
	return snap, reg, nil
}
