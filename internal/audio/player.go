package audio

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const (
	contextSampleRate = 44100
	contextChannels   = 2
	toneFrequency     = 880
)

var contextFormat = wavFormat{SampleRate: contextSampleRate, Channels: contextChannels, BitDepth: 16}

// oto allows a single context per process.
var (
	otoCtx     *oto.Context
	otoCtxErr  error
	otoCtxOnce sync.Once
)

func audioContext() (*oto.Context, error) {
	otoCtxOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   contextSampleRate,
			ChannelCount: contextChannels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoCtxErr = fmt.Errorf("audio: open output device: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoCtxErr
}

// Player is the AudioWakePort backed by oto. It owns one playback at a time;
// Start replaces whatever is playing.
type Player struct {
	soundDir string
	logger   *slog.Logger

	mu      sync.Mutex
	session *session
}

type session struct {
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewPlayer(soundDir string, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{soundDir: soundDir, logger: logger.With("component", "audio")}
}

func (p *Player) Start(track string, volume int, loop bool) error {
	p.Stop()

	pcm, err := p.load(track)
	if err != nil {
		p.logger.Warn("alarm sound unavailable, using built-in tone", "track", track, "error", err)
		pcm = synthTone(contextFormat, toneFrequency)
	}
	ctx, err := audioContext()
	if err != nil {
		return err
	}

	s := &session{stopCh: make(chan struct{}), doneCh: make(chan struct{})}
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()

	go p.playLoop(ctx, s, pcm, volume, loop)
	return nil
}

func (p *Player) Stop() {
	p.mu.Lock()
	s := p.session
	p.session = nil
	p.mu.Unlock()
	if s == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

func (p *Player) playLoop(ctx *oto.Context, s *session, pcm []byte, volume int, loop bool) {
	defer close(s.doneCh)
	gain := clampVolume(volume)
	for {
		player := ctx.NewPlayer(bytes.NewReader(pcm))
		player.SetVolume(gain)
		player.Play()

		stopped := waitPlayback(player, s.stopCh)
		if err := player.Close(); err != nil {
			p.logger.Warn("closing audio player failed", "error", err)
		}
		if stopped || !loop {
			return
		}
		select {
		case <-s.stopCh:
			return
		default:
		}
	}
}

// waitPlayback blocks until the player drains or stop is closed, and reports
// whether it was stopped.
func waitPlayback(player *oto.Player, stop <-chan struct{}) bool {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-stop:
			player.Pause()
			return true
		case <-ticker.C:
		}
	}
	return false
}

// load resolves a track name to PCM in the context format. A track is looked
// up as <soundDir>/<track>.wav unless it already names a file.
func (p *Player) load(track string) ([]byte, error) {
	path, err := resolveTrack(p.soundDir, track)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format, pcm, err := parseWAV(raw)
	if err != nil {
		return nil, err
	}
	if format != contextFormat {
		return nil, fmt.Errorf("audio: %s is %d Hz/%d ch/%d bit, want %d Hz/%d ch/16 bit",
			path, format.SampleRate, format.Channels, format.BitDepth, contextSampleRate, contextChannels)
	}
	return pcm, nil
}

func resolveTrack(soundDir, track string) (string, error) {
	track = strings.TrimSpace(track)
	if track == "" {
		return "", errors.New("audio: empty track name")
	}
	if strings.HasSuffix(strings.ToLower(track), ".wav") || filepath.IsAbs(track) {
		return track, nil
	}
	if strings.ContainsAny(track, `/\`) {
		return "", fmt.Errorf("audio: invalid track name %q", track)
	}
	return filepath.Join(soundDir, track+".wav"), nil
}

func clampVolume(volume int) float64 {
	switch {
	case volume <= 0:
		return 0
	case volume >= 100:
		return 1
	default:
		return float64(volume) / 100
	}
}
