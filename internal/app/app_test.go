package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
)

func loggerSilent() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func untilDone(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func TestAppRun_RunsAllThenDrains_GoMock(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tcp := NewMockRunner(ctrl)
	web := NewMockRunner(ctrl)
	drainer := NewMockDrainer(ctrl)

	started := make(chan struct{}, 2)
	for _, r := range []*MockRunner{tcp, web} {
		r.EXPECT().Run(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
			// Контекст не должен быть отменён преждевременно
			select {
			case <-ctx.Done():
				t.Errorf("ctx was canceled prematurely")
			default:
			}
			started <- struct{}{}
			return untilDone(ctx)
		})
	}

	var drained bool
	drainer.EXPECT().Shutdown(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("drain ctx has no deadline")
		}
		drained = true
		return nil
	})

	a := New(loggerSilent(), drainer, time.Second, tcp, web)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	<-started
	<-started
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
	if !drained {
		t.Fatal("drainer was not called")
	}
}

func TestAppRun_RunnerErrorStopsOthers_GoMock(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	wantErr := errors.New("listen: address in use")
	bad := NewMockRunner(ctrl)
	good := NewMockRunner(ctrl)
	drainer := NewMockDrainer(ctrl)

	bad.EXPECT().Run(gomock.Any()).Return(wantErr)
	good.EXPECT().Run(gomock.Any()).DoAndReturn(untilDone)
	drainer.EXPECT().Shutdown(gomock.Any()).Return(nil)

	err := New(loggerSilent(), drainer, time.Second, bad, good).run(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("run() error = %v; want %v", err, wantErr)
	}
}

func TestAppRun_PropagatesDrainError_GoMock(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	wantErr := context.DeadlineExceeded
	r := NewMockRunner(ctrl)
	drainer := NewMockDrainer(ctrl)

	r.EXPECT().Run(gomock.Any()).Return(nil)
	drainer.EXPECT().Shutdown(gomock.Any()).Return(wantErr)

	err := New(loggerSilent(), drainer, time.Second, r).run(context.Background())
	if err == nil {
		t.Fatalf("run() expected error, got nil")
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("run() error = %v; want %v", err, wantErr)
	}
}

func TestAppRun_CancelsOnSignal_GracefulExit_GoMock(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mr := NewMockRunner(ctrl)
	drainer := NewMockDrainer(ctrl)

	mr.EXPECT().Run(gomock.Any()).DoAndReturn(untilDone)
	drainer.EXPECT().Shutdown(gomock.Any()).Return(nil)

	a := New(loggerSilent(), drainer, time.Second, mr)

	done := make(chan error, 1)
	go func() { done <- a.Run() }()

	time.Sleep(50 * time.Millisecond)

	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("sending SIGINT failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() returned error on graceful cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after SIGINT")
	}
}
