// Package coordinator implements the Request Coordinator: the per-inquiry
// state machine that walks one sub-request through certification lookup,
// config selection, fingerprinting, cache lookup, dispatch, and response
// assembly. Grounded on spec.md §4.6's state machine
// (VALIDATE→CERT_LOOKUP→CONFIG_SELECT→FINGERPRINT→CACHE_LOOKUP→DISPATCH→
// AWAIT_RESPONSE→PARSE→RESPOND) and on original_source's msghnd request
// handler, re-expressed with one goroutine per sub-request and an
// at-most-one-in-flight waiter map guarding duplicate dispatch, since no
// donor file implements async request de-duplication — the donor's
// request handlers are all stateless single-shot RPCs.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"afc-coordinator/pkg/afcmodels"
	"afc-coordinator/pkg/apperror"
	"afc-coordinator/pkg/bus"
	"afc-coordinator/pkg/certauth"
	"afc-coordinator/pkg/configdispenser"
	"afc-coordinator/pkg/dispatchhistory"
	"afc-coordinator/pkg/fingerprint"
	"afc-coordinator/pkg/logger"
	"afc-coordinator/pkg/metrics"
	"afc-coordinator/pkg/objstore"
	"afc-coordinator/pkg/rcache"
	"afc-coordinator/pkg/taskqueue"
	"afc-coordinator/pkg/workerpool"
)

// Deadlines bounds how long one sub-request may wait for a worker response.
type Deadlines struct {
	Normal time.Duration
	Edebug time.Duration
}

// Correlator is the subset of *bus.Correlator the Coordinator needs,
// narrowed so tests can substitute a fake broker.
type Correlator interface {
	Await(ctx context.Context, fingerprint string, timeout time.Duration) (*bus.Envelope, error)
}

// TaskSubmitter is the subset of *taskqueue.Queue the Coordinator needs.
type TaskSubmitter interface {
	Submit(ctx context.Context, task *taskqueue.Task) error
}

// JobRunner is the subset of *workerpool.Pool the Coordinator needs.
type JobRunner interface {
	Submit(ctx context.Context, job workerpool.Job) error
}

// Coordinator dispatches one sub-request at a time through the state
// machine described in spec.md §4.6.
type Coordinator struct {
	certs     *certauth.Authorizer
	configs   *configdispenser.Dispenser
	store     rcache.Store
	correlate Correlator
	tasks     TaskSubmitter
	objects   objstore.Store
	history   dispatchhistory.Repository
	pool      JobRunner
	rules     afcmodels.VendorExtensionRules
	deadlines Deadlines

	// responseQueue is this process's bus reply-to queue name, carried on
	// every dispatched Task so a worker knows where to publish its result.
	responseQueue string
	mntroot       string
	requestType   string

	mu      sync.Mutex
	waiters map[string][]chan afcmodels.SubResponse
}

// New builds a Coordinator from its collaborators. pool runs the
// best-effort object-store/task-queue submissions off the request
// goroutine (spec.md §5's bounded worker pool). responseQueue is the
// dispatching process's own bus reply-to queue name (bus.Correlator's
// QueueName); mntroot and requestType are the deployment-wide AFC Engine
// mount root and request-type constant every dispatched Task carries.
func New(
	certs *certauth.Authorizer,
	configs *configdispenser.Dispenser,
	store rcache.Store,
	correlate Correlator,
	tasks TaskSubmitter,
	objects objstore.Store,
	history dispatchhistory.Repository,
	pool JobRunner,
	rules afcmodels.VendorExtensionRules,
	deadlines Deadlines,
	responseQueue, mntroot, requestType string,
) *Coordinator {
	return &Coordinator{
		certs:         certs,
		configs:       configs,
		store:         store,
		correlate:     correlate,
		tasks:         tasks,
		objects:       objects,
		history:       history,
		pool:          pool,
		rules:         rules,
		deadlines:     deadlines,
		responseQueue: responseQueue,
		mntroot:       mntroot,
		requestType:   requestType,
		waiters:       make(map[string][]chan afcmodels.SubResponse),
	}
}

// Process runs one sub-request through the full state machine and returns
// its sub-response. It never returns an error: every failure mode is
// folded into a SubResponse per spec.md §4.8's response-code taxonomy.
func (c *Coordinator) Process(ctx context.Context, req afcmodels.SubRequest, flags afcmodels.Flags) afcmodels.SubResponse {
	deadline := c.deadline(flags)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	rulesetID, cfg, err := c.selectRuleset(ctx, req)
	if err != nil {
		return errorResponse(req.RequestID, "", apperror.CodeDeviceDisallowed, err.Error())
	}

	fp := fingerprint.Compute(req, *cfg)

	if !skipsCache(flags) {
		if resp, hit := c.cacheLookup(ctx, fp); hit {
			metrics.Get().RecordCacheLookup("hit")
			resp.RequestID = req.RequestID
			return resp
		}
	}
	metrics.Get().RecordCacheLookup("miss")

	resp, err := c.dispatchAndAwait(ctx, req, *cfg, rulesetID, fp, deadline)
	if err != nil {
		return errorResponse(req.RequestID, rulesetID, apperror.CodeGeneralFailure, err.Error())
	}
	resp.RequestID = req.RequestID
	return resp
}

func (c *Coordinator) deadline(flags afcmodels.Flags) time.Time {
	if flags.Edebug {
		return time.Now().Add(c.deadlines.Edebug)
	}
	return time.Now().Add(c.deadlines.Normal)
}

func skipsCache(flags afcmodels.Flags) bool {
	return flags.NoCache || flags.Debug || flags.Edebug || flags.GUI
}

// selectRuleset walks the sub-request's presented certifications in order
// and returns the first one that is both authorized and has an available
// config, matching spec.md §4.6's "first allowed certification wins" rule.
func (c *Coordinator) selectRuleset(ctx context.Context, req afcmodels.SubRequest) (string, *afcmodels.Config, error) {
	for _, cert := range req.Device.Certifications {
		ok, err := c.certs.IsAuthorized(ctx, req.Device.SerialNumber, cert.RulesetID, cert.ID)
		if err != nil {
			return "", nil, fmt.Errorf("certification lookup failed: %w", err)
		}
		if !ok {
			continue
		}

		cfg, err := c.configs.Get(ctx, cert.RulesetID)
		if err != nil || cfg == nil {
			continue
		}
		return cert.RulesetID, cfg, nil
	}
	return "", nil, fmt.Errorf("No AFC Config found for presented Ruleset IDs")
}

func (c *Coordinator) cacheLookup(ctx context.Context, fp string) (afcmodels.SubResponse, bool) {
	entries, err := c.store.Lookup(ctx, []string{fp})
	if err != nil {
		logger.Log.Warn("coordinator: cache lookup failed", "error", err)
		return afcmodels.SubResponse{}, false
	}
	entry, ok := entries[fp]
	if !ok {
		return afcmodels.SubResponse{}, false
	}

	var resp afcmodels.SubResponse
	if err := json.Unmarshal(entry.Response, &resp); err != nil {
		logger.Log.Warn("coordinator: cached response unmarshal failed", "fingerprint", fp, "error", err)
		return afcmodels.SubResponse{}, false
	}
	return resp, true
}

// dispatchAndAwait implements the at-most-one-in-flight rule: the first
// caller for a given fingerprint submits the task and awaits the bus
// response; every concurrent caller for the same fingerprint instead
// subscribes to a completion channel and receives the same result.
func (c *Coordinator) dispatchAndAwait(ctx context.Context, req afcmodels.SubRequest, cfg afcmodels.Config, rulesetID, fp string, deadline time.Time) (afcmodels.SubResponse, error) {
	c.mu.Lock()
	if chans, inFlight := c.waiters[fp]; inFlight {
		ch := make(chan afcmodels.SubResponse, 1)
		c.waiters[fp] = append(chans, ch)
		c.mu.Unlock()
		return c.await(ctx, ch)
	}
	ch := make(chan afcmodels.SubResponse, 1)
	c.waiters[fp] = []chan afcmodels.SubResponse{ch}
	c.mu.Unlock()

	go c.runDispatch(req, cfg, rulesetID, fp, deadline)

	return c.await(ctx, ch)
}

func (c *Coordinator) await(ctx context.Context, ch chan afcmodels.SubResponse) (afcmodels.SubResponse, error) {
	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return afcmodels.SubResponse{}, fmt.Errorf("timed out waiting for response")
	}
}

// runDispatch is the single in-flight dispatcher for fingerprint fp: it
// submits the compute task, writes the best-effort history artifacts,
// awaits the correlated bus response, updates the cache, and fans the
// result out to every waiter registered for fp.
func (c *Coordinator) runDispatch(req afcmodels.SubRequest, cfg afcmodels.Config, rulesetID, fp string, deadline time.Time) {
	ctx := context.Background()
	taskID := fp
	historyDir := fmt.Sprintf("/history/%s/%s", req.Device.SerialNumber, time.Now().UTC().Format(time.RFC3339))

	reqData, _ := json.Marshal(req)
	cfgData, err := json.Marshal(cfg.Raw)
	if err != nil {
		logger.Log.Warn("coordinator: config document marshal failed", "ruleset_id", rulesetID, "error", err)
	}

	c.submitBestEffort(ctx, taskID, historyDir, rulesetID, reqData, cfgData, req, deadline)

	resp := c.awaitWorker(ctx, req.RequestID, rulesetID, fp, taskID, deadline)
	c.fanOut(fp, resp)
}

func (c *Coordinator) submitBestEffort(ctx context.Context, taskID, historyDir, rulesetID string, reqData, cfgData []byte, req afcmodels.SubRequest, deadline time.Time) {
	_ = c.pool.Submit(ctx, func(ctx context.Context) {
		objstore.WriteBestEffort(ctx, c.objects, taskID, "analysisRequest.json", reqData)
		objstore.WriteBestEffort(ctx, c.objects, taskID, "afc_config.json", cfgData)
	})

	if c.history != nil {
		rec := &dispatchhistory.Record{
			SerialNumber: req.Device.SerialNumber,
			Fingerprint:  taskID,
			RulesetID:    rulesetID,
			TaskID:       taskID,
			RequestData:  reqData,
			DispatchedAt: time.Now(),
		}
		if err := c.history.Create(ctx, rec); err != nil {
			logger.Log.Warn("coordinator: dispatch history create failed", "error", err)
		}
	}

	prot, host, port := c.objects.Coordinates()
	task := &taskqueue.Task{
		Prot:          prot,
		Host:          host,
		Port:          port,
		RequestType:   c.requestType,
		TaskID:        taskID,
		Fingerprint:   taskID,
		RulesetID:     rulesetID,
		ConfigPath:    taskID + "/afc_config.json",
		HistoryDir:    historyDir,
		Mntroot:       c.mntroot,
		ResponseQueue: c.responseQueue,
		RequestData:   reqData,
		ConfigData:    cfgData,
		Deadline:      deadline.UTC().Format(time.RFC3339),
	}
	if err := c.tasks.Submit(ctx, task); err != nil {
		logger.Log.Warn("coordinator: task submission failed, deadline will produce a timeout", "error", err)
	}
}

func (c *Coordinator) awaitWorker(ctx context.Context, requestID, rulesetID, fp, taskID string, deadline time.Time) afcmodels.SubResponse {
	env, err := c.correlate.Await(ctx, fp, time.Until(deadline))
	outcome := dispatchhistory.OutcomeCompleted
	var resp afcmodels.SubResponse

	switch {
	case err != nil:
		outcome = dispatchhistory.OutcomeTimedOut
		resp = errorResponse(requestID, rulesetID, apperror.CodeGeneralFailure, "timed out")
		metrics.Get().RecordDispatch("timeout")
	default:
		if uerr := json.Unmarshal(env.Response, &resp); uerr != nil {
			outcome = dispatchhistory.OutcomeError
			resp = errorResponse(requestID, rulesetID, apperror.CodeGeneralFailure, "malformed worker response")
			metrics.Get().RecordDispatch("error")
		} else {
			metrics.Get().RecordDispatch("completed")
			c.updateCache(ctx, fp, rulesetID, env.Response)
		}
	}

	if c.history != nil {
		var responseData []byte
		if env != nil {
			responseData = env.Response
		}
		if herr := c.history.Complete(ctx, taskID, outcome, responseData); herr != nil {
			logger.Log.Warn("coordinator: dispatch history write failed", "error", herr)
		}
	}

	return resp
}

func (c *Coordinator) updateCache(ctx context.Context, fp, rulesetID string, respData []byte) {
	enabled, err := c.store.SwitchState(ctx, rcache.SwitchUpdateEnabled)
	if err != nil {
		logger.Log.Warn("coordinator: update switch state read failed, writing anyway", "error", err)
	} else if !enabled {
		logger.Log.Debug("coordinator: cache update skipped, update switch disabled", "fingerprint", fp)
		return
	}

	entry := &rcache.Entry{
		Rulesets:    []string{rulesetID},
		State:       rcache.StateValid,
		Fingerprint: fp,
		LastUpdate:  time.Now(),
		Response:    respData,
	}
	if err := c.store.Update(ctx, []*rcache.Entry{entry}); err != nil {
		logger.Log.Warn("coordinator: cache update failed", "fingerprint", fp, "error", err)
	}
}

func (c *Coordinator) fanOut(fp string, resp afcmodels.SubResponse) {
	c.mu.Lock()
	chans := c.waiters[fp]
	delete(c.waiters, fp)
	c.mu.Unlock()

	for _, ch := range chans {
		ch <- resp
	}
}

func errorResponse(requestID, rulesetID string, code apperror.ErrorCode, message string) afcmodels.SubResponse {
	return afcmodels.SubResponse{
		RequestID: requestID,
		RulesetID: rulesetID,
		Response: afcmodels.ResponseCode{
			ResponseCode:     code.ResponseCode(),
			ShortDescription: message,
		},
	}
}
