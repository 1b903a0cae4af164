package bundlelib

func (m *Manager) tickOperations() {
	ops := m.ops
	m.ops = nil
	kept := make([]*Operation, 0, len(ops))
	for _, op := range ops {
		if m.advance(op) {
			kept = append(kept, op)
		}
	}
	// Operations started from completion callbacks were appended to m.ops.
	m.ops = append(kept, m.ops...)
}

// advance moves op forward one step and reports whether it needs more ticks.
func (m *Manager) advance(op *Operation) bool {
	if op.state == StateDone {
		return false
	}
	var more bool
	switch op.kind {
	case OpLoadAsset, OpLoadManifest:
		more = m.advanceAsset(op)
	case OpLoadScene:
		more = m.advanceScene(op)
	}
	if !more {
		m.operationDone(op)
	}
	return more
}

func (m *Manager) advanceAsset(op *Operation) bool {
	if op.extract == nil {
		lb, err := m.registry.GetLoaded(op.bundle)
		if err != nil {
			op.finish(nil, err)
			return false
		}
		if lb == nil {
			op.progress = 0.9 * m.bundleProgress(op.bundle)
			return true
		}
		op.state = StateRunning
		op.extract = startExtraction(m.l, lb.Bundle, op.asset, op.decode)
	}
	if !op.extract.done.Load() {
		op.progress = 0.9 + 0.1*op.extract.progress()
		return true
	}
	op.finish(op.extract.result())
	return false
}

func (m *Manager) advanceScene(op *Operation) bool {
	if op.scene == nil {
		lb, err := m.registry.GetLoaded(op.bundle)
		if err != nil {
			op.finish(nil, err)
			return false
		}
		if lb == nil {
			op.progress = 0.5 * m.bundleProgress(op.bundle)
			return true
		}
		req, err := m.activator.ActivateScene(lb.Bundle, op.asset, op.additive)
		if err != nil {
			op.finish(nil, err)
			return false
		}
		op.state = StateRunning
		op.scene = req
	}
	if err := op.scene.Err(); err != nil {
		op.finish(nil, err)
		return false
	}
	p := op.scene.Progress()
	if p >= op.threshold {
		if s, ok := op.scene.(interface{ Scene() *Scene }); ok {
			op.finish(s.Scene(), nil)
		} else {
			op.finish(op.asset, nil)
		}
		return false
	}
	op.progress = 0.5 + 0.5*p/op.threshold
	return true
}

func (m *Manager) operationDone(op *Operation) {
	if op.kind == OpLoadManifest {
		m.manifestDone(op)
		return
	}
	if op.err != nil {
		m.l.Error("Loading %s %s from %s: %v", op.kind, op.asset, op.bundle, op.err)
	}
}

// bundleProgress averages the load state of name and its transitive
// dependencies: 1 when loaded, the transfer progress while fetching.
func (m *Manager) bundleProgress(name string) float64 {
	seen := map[string]bool{}
	var sum float64
	var n int
	var walk func(string)
	walk = func(b string) {
		if seen[b] {
			return
		}
		seen[b] = true
		n++
		if _, ok := m.registry.loaded[b]; ok {
			sum++
		} else if p, ok := m.scheduler.FetchProgress(b); ok {
			sum += p
		}
		for _, dep := range m.registry.deps[b] {
			walk(dep)
		}
	}
	walk(name)
	return sum / float64(n)
}

// SceneRequest returns the activation request of a running scene
// operation, or nil.
func (op *Operation) SceneRequest() SceneRequest {
	return op.scene
}
