package ui

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFailureSticksOverLaterCompletion(t *testing.T) {
	ui := NewTransferUI(ModeBroadcast, []string{"alpha", "beta"}, 1000)
	m := ui.model

	m.applyUpdate(progressUpdate{targetID: 0, failed: true, errMsg: "connection refused"})
	// The broadcast loop reports progress for every peer, failed ones
	// included.
	m.applyUpdate(progressUpdate{targetID: 0, completed: true})

	require.True(t, m.targets[0].failed)
	require.False(t, m.targets[0].complete)
	require.Equal(t, "connection refused", m.targets[0].errMsg)
}

func TestAllDoneCountsFailuresAsDone(t *testing.T) {
	ui := NewTransferUI(ModeBroadcast, []string{"alpha", "beta"}, 1000)
	m := ui.model

	require.False(t, m.allDone())

	m.applyUpdate(progressUpdate{targetID: 0, completed: true})
	require.False(t, m.allDone())

	m.applyUpdate(progressUpdate{targetID: 1, failed: true, errMsg: "no route"})
	require.True(t, m.allDone())
}

func TestProgressUpdateIgnoresUnknownTarget(t *testing.T) {
	ui := NewTransferUI(ModeSend, []string{"report.pdf"}, 500)
	m := ui.model

	m.applyUpdate(progressUpdate{targetID: 7, current: 100})
	require.Zero(t, m.targets[0].current)

	m.applyUpdate(progressUpdate{targetID: 0, current: 100})
	require.Equal(t, int64(100), m.targets[0].current)
}
