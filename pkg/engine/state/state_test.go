package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InitialStateIsReady(t *testing.T) {
	p := New()
	assert.Equal(t, KindReady, p.Current().Kind)
}

func TestSubscribe_SeesCurrentStateImmediately(t *testing.T) {
	p := New()
	p.Publish(Processing(2))

	ch, unsubscribe := p.Subscribe()
	defer unsubscribe()

	select {
	case s := <-ch:
		assert.Equal(t, KindProcessing, s.Kind)
		assert.Equal(t, 2, s.ActiveCount)
	case <-time.After(time.Second):
		t.Fatal("expected immediate current-state delivery")
	}
}

func TestPublish_ProcessingZeroCollapsesToReady(t *testing.T) {
	p := New()
	p.Publish(Processing(0))
	assert.Equal(t, KindReady, p.Current().Kind)
}

func TestPublish_BroadcastsToMultipleSubscribers(t *testing.T) {
	p := New()
	ch1, unsub1 := p.Subscribe()
	defer unsub1()
	ch2, unsub2 := p.Subscribe()
	defer unsub2()

	<-ch1
	<-ch2

	p.Publish(Downloading("model-1", 0.5, 1000, true))

	s1 := <-ch1
	s2 := <-ch2
	require.Equal(t, KindDownloading, s1.Kind)
	require.Equal(t, KindDownloading, s2.Kind)
	assert.Equal(t, "model-1", s1.DownloadID)
	assert.Equal(t, 0.5, s2.DownloadPercent)
}

func TestUnsubscribe_StopsFurtherDelivery(t *testing.T) {
	p := New()
	ch, unsubscribe := p.Subscribe()
	<-ch
	unsubscribe()
	unsubscribe()

	p.Publish(Error("boom", true))
	_, ok := <-ch
	assert.False(t, ok)
}

func TestPublish_ErrorStateCarriesRecoverability(t *testing.T) {
	p := New()
	p.Publish(Error("disk full", false))
	got := p.Current()
	assert.Equal(t, KindError, got.Kind)
	assert.Equal(t, "disk full", got.ErrorMessage)
	assert.False(t, got.ErrorRecoverable)
}
