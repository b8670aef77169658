package service

import (
	"sync"
	"testing"
	"time"

	v1 "tiergate/pkg/api/v1"
	"tiergate/pkg/constraints"
)

type MockObserver struct{}

func (m *MockObserver) IncOnline()                          {}
func (m *MockObserver) DecOnline()                          {}
func (m *MockObserver) RecordPush()                         {}
func (m *MockObserver) ObservePushLatency(duration float64) {}

func TestHub_OverrideScoping(t *testing.T) {
	hub := NewHub(&MockObserver{}, time.Hour, 512)
	go hub.Run()

	acme := &Client{Send: make(chan v1.Message, 8), CompanyID: "acme"}
	globo := &Client{Send: make(chan v1.Message, 8), CompanyID: "globo"}
	dashboard := &Client{Send: make(chan v1.Message, 8), CompanyID: "*"}
	hub.Register <- acme
	hub.Register <- globo
	hub.Register <- dashboard

	hub.Broadcast <- v1.Message{
		Kind:      constraints.KindOverride,
		FlagName:  "sso",
		CompanyID: "acme",
		Revision:  1,
	}
	hub.Broadcast <- v1.Message{
		Kind:     constraints.KindFlag,
		FlagName: "sso",
		Revision: 2,
	}

	expect := func(c *Client, name string, kinds ...string) {
		t.Helper()
		for _, kind := range kinds {
			select {
			case msg := <-c.Send:
				if msg.Kind != kind {
					t.Errorf("%s: expected %s message, got %s", name, kind, msg.Kind)
				}
			case <-time.After(time.Second):
				t.Errorf("%s: timed out waiting for %s message", name, kind)
			}
		}
		select {
		case msg := <-c.Send:
			t.Errorf("%s: unexpected extra message %+v", name, msg)
		case <-time.After(20 * time.Millisecond):
		}
	}

	// acme and the dashboard see the override; globo only sees the flag change.
	expect(acme, "acme", constraints.KindOverride, constraints.KindFlag)
	expect(dashboard, "dashboard", constraints.KindOverride, constraints.KindFlag)
	expect(globo, "globo", constraints.KindFlag)
}

func TestHub_Concurrency(t *testing.T) {
	hub := NewHub(&MockObserver{}, 100*time.Millisecond, 512)
	go hub.Run()

	var wg sync.WaitGroup
	// Parameters for race detection
	clientCount := 50
	msgCount := 200

	clients := make([]*Client, clientCount)

	// 1. Concurrent Registration
	for i := 0; i < clientCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			c := &Client{
				Send:      make(chan v1.Message, 50),
				CompanyID: "acme",
			}
			clients[idx] = c
			hub.Register <- c
		}(i)
	}
	wg.Wait()

	broadcastDone := make(chan struct{})

	// 2. Concurrent Broadcast
	go func() {
		for i := 0; i < msgCount; i++ {
			hub.Broadcast <- v1.Message{
				Kind:      constraints.KindOverride,
				FlagName:  "sso",
				CompanyID: "acme",
				Revision:  int64(i),
			}
			// Small delay to allow interleaving with unregister
			if i%10 == 0 {
				time.Sleep(time.Millisecond)
			}
		}
		close(broadcastDone)
	}()

	// 3. Concurrent Unregister (churn)
	go func() {
		for i := 0; i < clientCount/2; i++ {
			time.Sleep(2 * time.Millisecond)
			hub.Unregister <- clients[i]
		}
	}()

	// 4. Reader Consuming Loop
	var readWg sync.WaitGroup
	for i := 0; i < clientCount; i++ {
		readWg.Add(1)
		go func(c *Client) {
			defer readWg.Done()
			timeout := time.After(3 * time.Second)
			for {
				select {
				case _, ok := <-c.Send:
					if !ok {
						return // Channel closed by Hub (disconnect/unregister)
					}
				case <-broadcastDone:
					// Drain remaining
					for {
						select {
						case _, ok := <-c.Send:
							if !ok {
								return
							}
						default:
							return
						}
					}
				case <-timeout:
					return
				}
			}
		}(clients[i])
	}

	readWg.Wait()
}
