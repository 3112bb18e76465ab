package metrics

// Recording helpers. All methods tolerate a nil receiver so components can
// run without metrics wired in (tests, the satellite simulator).

// RecordFrameReceived increments the received-frames counter.
func (m *Metrics) RecordFrameReceived() {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
}

// RecordFrameSent increments the sent-frames counter.
func (m *Metrics) RecordFrameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

// RecordMalformedFrame increments the malformed-frames counter.
func (m *Metrics) RecordMalformedFrame() {
	if m == nil {
		return
	}
	m.MalformedFrames.Inc()
}

// AddConnections moves the active-connections gauge by delta.
func (m *Metrics) AddConnections(delta int) {
	if m == nil {
		return
	}
	m.ActiveConnections.Add(float64(delta))
}

// SetActiveSessions sets the active-sessions gauge.
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionOpened increments the sessions-opened counter.
func (m *Metrics) RecordSessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
}

// RecordSessionCompleted records a completed session and its duration.
func (m *Metrics) RecordSessionCompleted(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsDone.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionExpired increments the expired-sessions counter.
func (m *Metrics) RecordSessionExpired() {
	if m == nil {
		return
	}
	m.SessionsExpired.Inc()
}

// RecordSessionAborted increments the aborted-sessions counter.
func (m *Metrics) RecordSessionAborted() {
	if m == nil {
		return
	}
	m.SessionsAborted.Inc()
}

// RecordUtteranceEnqueued increments the enqueued-utterances counter.
func (m *Metrics) RecordUtteranceEnqueued() {
	if m == nil {
		return
	}
	m.UtterancesEnqueued.Inc()
}

// RecordUtteranceSuperseded increments the superseded-utterances counter.
func (m *Metrics) RecordUtteranceSuperseded() {
	if m == nil {
		return
	}
	m.UtterancesSuperseded.Inc()
}

// RecordUtteranceDropped increments the dropped-utterances counter.
func (m *Metrics) RecordUtteranceDropped() {
	if m == nil {
		return
	}
	m.UtterancesDropped.Inc()
}

// SetQueueDepth sets the arbiter queue depth gauge.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// RecordTranscription records one transcription collaborator call.
func (m *Metrics) RecordTranscription(durationSeconds float64, failed bool) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.Observe(durationSeconds)
	if failed {
		m.TranscriptionFailures.Inc()
	}
}

// RecordReasoning records one reasoning collaborator call.
func (m *Metrics) RecordReasoning(durationSeconds float64, failed bool) {
	if m == nil {
		return
	}
	m.ReasoningDuration.Observe(durationSeconds)
	if failed {
		m.ReasoningFailures.Inc()
	}
}

// RecordSynthesis records one synthesis collaborator call.
func (m *Metrics) RecordSynthesis(durationSeconds float64, failed bool) {
	if m == nil {
		return
	}
	m.SynthesisDuration.Observe(durationSeconds)
	if failed {
		m.SynthesisFailures.Inc()
	}
}

// RecordCycleLatency records the end-to-end latency of one utterance cycle.
func (m *Metrics) RecordCycleLatency(seconds float64) {
	if m == nil {
		return
	}
	m.CycleLatency.Observe(seconds)
}

// RecordEmptyTranscript increments the silently dropped cycles counter.
func (m *Metrics) RecordEmptyTranscript() {
	if m == nil {
		return
	}
	m.EmptyTranscripts.Inc()
}

// RecordResponseDispatched increments the dispatched-responses counter.
func (m *Metrics) RecordResponseDispatched() {
	if m == nil {
		return
	}
	m.ResponsesDispatched.Inc()
}

// RecordResponseDropped increments the dropped-responses counter.
func (m *Metrics) RecordResponseDropped() {
	if m == nil {
		return
	}
	m.ResponsesDropped.Inc()
}
