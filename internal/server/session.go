package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/franckalain/sosscan/internal/camera"
	"github.com/franckalain/sosscan/internal/capture"
	"github.com/franckalain/sosscan/internal/database"
	"github.com/franckalain/sosscan/internal/ml"
	"github.com/franckalain/sosscan/internal/models"
	"github.com/franckalain/sosscan/internal/pipeline"
	"github.com/franckalain/sosscan/internal/present"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// session is one websocket client with its own camera and pipeline
type session struct {
	id     string
	srv    *Server
	conn   *websocket.Conn
	device *camera.RemoteDevice
	ctrl   *pipeline.Controller
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writeMu sync.Mutex
}

func (s *Server) newSession(conn *websocket.Conn) *session {
	sess := &session{
		id:   uuid.New().String(),
		srv:  s,
		conn: conn,
	}
	sess.logger = s.logger.With("client", sess.id)
	sess.ctx, sess.cancel = context.WithCancel(context.Background())

	sess.device = camera.NewRemoteDevice(
		func() { sess.sendMessage("camera_start", map[string]any{"facingMode": "environment"}) },
		func() { sess.sendMessage("camera_stop", nil) },
	)
	sess.ctrl = pipeline.New(pipeline.Options{
		Camera:         camera.NewSession(sess.device, sess.logger),
		Capturer:       capture.NewCapturer(s.store, s.opts.Capture, sess.logger),
		Builder:        ml.NewRequestBuilder(),
		Client:         s.client,
		RequestTimeout: s.opts.RequestTimeout,
		Metrics:        s.opts.Metrics,
		Reporter:       s.opts.Reporter,
		Logger:         sess.logger,
		OnStateChange: func(state pipeline.State) {
			sess.sendMessage("state", map[string]any{"state": state})
		},
	})
	return sess
}

// run reads messages until the client goes away, then tears the pipeline down
func (sess *session) run() {
	sess.logger.Info("client connected")
	defer func() {
		sess.cancel()
		sess.ctrl.Close()
		sess.wg.Wait()
		sess.logger.Info("client disconnected")
	}()

	for {
		_, message, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.logger.Warn("error reading message", "error", err)
			}
			return
		}

		var msg map[string]any
		if err := json.Unmarshal(message, &msg); err != nil {
			sess.logger.Warn("error parsing message", "error", err)
			continue
		}
		sess.handleMessage(msg)
	}
}

func (sess *session) handleMessage(message map[string]any) {
	messageType, ok := message["type"].(string)
	if !ok {
		sess.sendError("Invalid message format")
		return
	}
	if messageType != "frame" && sess.srv.opts.Debug {
		sess.logger.Debug("received message", "type", messageType)
	}

	data, _ := message["data"].(map[string]any)

	switch messageType {
	case "start":
		sess.goAsync(sess.handleStart)
	case "frame":
		sess.handleFrame(data)
	case "camera_error":
		sess.handleCameraError(data)
	case "capture":
		sess.goAsync(sess.handleCapture)
	case "analyze":
		sess.goAsync(sess.handleAnalyze)
	case "restart":
		sess.goAsync(sess.handleRestart)
	case "get_result":
		sess.sendMessage("scan_result", present.Render(sess.ctrl.TakeHandoff()))
	case "set_name":
		sess.handleSetName(data)
	case "get_greeting":
		sess.handleGetGreeting()
	case "exit":
		sess.handleExit()
	default:
		sess.sendError("Unknown message type")
	}
}

// goAsync runs fn off the read loop so frames keep flowing while it blocks
func (sess *session) goAsync(fn func()) {
	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		fn()
	}()
}

func (sess *session) handleStart() {
	err := sess.ctrl.Start(sess.ctx)
	switch {
	case err == nil, errors.Is(err, pipeline.ErrSuperseded), errors.Is(err, pipeline.ErrClosed):
	case errors.Is(err, pipeline.ErrNotIdle):
		sess.sendError("Scan already started")
	default:
		sess.sendError("Failed to start scan")
	}
	sess.sendCompletion()
}

func (sess *session) handleFrame(data map[string]any) {
	imageStr, ok := data["image"].(string)
	if !ok {
		sess.sendError("Invalid image data")
		return
	}
	// Accept data URLs as produced by canvas.toDataURL
	if i := strings.Index(imageStr, ","); strings.HasPrefix(imageStr, "data:") && i >= 0 {
		imageStr = imageStr[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(imageStr)
	if err != nil {
		sess.sendError("Invalid image format")
		return
	}
	delivered, err := sess.device.PushEncoded(raw)
	if err != nil {
		sess.logger.Warn("undecodable frame", "error", err, "bytes", len(raw))
		sess.sendError("Invalid image format")
		return
	}
	if !delivered {
		sess.logger.Debug("dropped frame, camera not open")
	}
}

func (sess *session) handleCameraError(data map[string]any) {
	name, _ := data["name"].(string)
	message, _ := data["message"].(string)
	denied := name == "NotAllowedError" || name == "SecurityError"
	sess.device.Fail(strings.TrimSpace(name+" "+message), denied)
}

func (sess *session) handleCapture() {
	_, err := sess.ctrl.CaptureAndAnalyze(sess.ctx)
	sess.finishAnalysis(err)
}

func (sess *session) handleAnalyze() {
	_, err := sess.ctrl.Analyze(sess.ctx)
	sess.finishAnalysis(err)
}

func (sess *session) finishAnalysis(err error) {
	switch {
	case err == nil:
		sess.sendCompletion()
	case errors.Is(err, pipeline.ErrAnalysisInProgress):
		sess.logger.Debug("ignored capture while analyzing")
	case errors.Is(err, pipeline.ErrNotStreaming):
		sess.sendError("Camera is not ready")
	case errors.Is(err, pipeline.ErrNothingToAnalyze):
		sess.sendError("Nothing to analyze")
	case errors.Is(err, pipeline.ErrSuperseded), errors.Is(err, pipeline.ErrClosed):
	default:
		sess.sendError("Failed to analyze product")
	}
}

func (sess *session) handleRestart() {
	err := sess.ctrl.Restart(sess.ctx)
	if err != nil && !errors.Is(err, pipeline.ErrSuperseded) && !errors.Is(err, pipeline.ErrClosed) {
		sess.sendError("Failed to restart scan")
		return
	}
	sess.sendCompletion()
}

// sendCompletion tells the client a run finished; the view itself is fetched with get_result
func (sess *session) sendCompletion() {
	outcome := sess.ctrl.Outcome()
	if outcome == nil {
		return
	}
	sess.sendMessage("scan_complete", completion(sess.ctrl.RunID(), outcome))
}

func completion(runID string, outcome *models.ScanOutcome) map[string]any {
	msg := map[string]any{"run_id": runID, "ok": outcome.OK()}
	if outcome.Failure != nil {
		msg["category"] = outcome.Failure.Category
		msg["message"] = outcome.Failure.Message
	}
	return msg
}

func (sess *session) handleSetName(data map[string]any) {
	name, _ := data["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		sess.sendError("Name must not be empty")
		return
	}
	if err := sess.srv.db.SetPreference(sess.ctx, database.KeyUserName, name); err != nil {
		sess.logger.Error("error saving name", "error", err)
		sess.sendError("Failed to save name")
		return
	}
	sess.handleGetGreeting()
}

func (sess *session) handleGetGreeting() {
	name, _, err := sess.srv.db.GetPreference(sess.ctx, database.KeyUserName)
	if err != nil {
		sess.logger.Error("error loading name", "error", err)
	}
	if name == "" {
		name = present.DefaultName
	}
	sess.sendMessage("greeting", map[string]any{
		"name":     name,
		"greeting": present.Greeting(sess.srv.now(), name),
	})
}

func (sess *session) handleExit() {
	if err := sess.srv.db.DeletePreference(sess.ctx, database.KeyUserName); err != nil {
		sess.logger.Error("error clearing name", "error", err)
		sess.sendError("Failed to sign out")
		return
	}
	sess.sendMessage("exited", nil)
}

func (sess *session) sendMessage(messageType string, data any) {
	msg := map[string]any{
		"type": messageType,
		"data": data,
	}

	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if err := sess.conn.WriteJSON(msg); err != nil {
		sess.logger.Debug("error sending message", "type", messageType, "error", err)
	}
}

func (sess *session) sendError(message string) {
	msg := map[string]any{
		"type":    "error",
		"message": message,
	}

	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if err := sess.conn.WriteJSON(msg); err != nil {
		sess.logger.Debug("error sending error message", "error", err)
	}
}
