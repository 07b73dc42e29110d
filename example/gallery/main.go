// Gallery walks a viewport through a YAML scene and logs what the
// teleporters and video screens do.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/akmonengine/lens"
	"github.com/akmonengine/lens/config"
	"github.com/akmonengine/lens/dom"
	"github.com/akmonengine/lens/engine"
	"github.com/akmonengine/lens/overlay"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	sceneFlag     = flag.String("scene", "scene.yaml", "Scene file to load")
	configFlag    = flag.String("config", "", "Options file, both triggers are enabled when empty")
	debugFlag     = flag.Bool("debug", false, "Show per-frame debug information")
	logFileFlag   = flag.String("logfile", "", "Write logs to this file instead of the console")
	userAgentFlag = flag.String("user-agent", "", "User agent used to pick the depth mode")
	dumpFlag      = flag.Bool("dump", true, "Print the overlay DOM after the walk")
)

func main() {
	flag.Parse()

	var out io.Writer = os.Stderr
	if *logFileFlag != "" {
		out = &lumberjack.Logger{
			Filename:   *logFileFlag,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		}
	}
	level := slog.LevelInfo
	if *debugFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	lens.SetLogger(logger)

	if err := run(context.Background(), logger); err != nil {
		log.Fatal(err)
	}
}

func loadOptions() (config.Options, error) {
	if *configFlag != "" {
		return config.Load(*configFlag)
	}
	options := config.Default()
	options.Teleporter.Enabled = true
	options.VideoScreen.Enabled = true
	return options, nil
}

func run(ctx context.Context, logger *slog.Logger) error {
	options, err := loadOptions()
	if err != nil {
		return err
	}
	scene, err := loadScene(*sceneFlag)
	if err != nil {
		return err
	}

	m := engine.NewMemory()
	if err := scene.populate(m); err != nil {
		return err
	}
	player := engine.EntityID(scene.Player)

	teleporter := lens.NewTeleporter(m, player, options.Teleporter)
	if err := teleporter.Initialize(ctx); err != nil {
		return err
	}
	defer teleporter.Close()
	teleporter.Events().Subscribe(lens.TELEPORT, func(event lens.Event) {
		e := event.(lens.TeleportEvent)
		logger.Info("teleport", "source", e.Source, "destination", e.Destination, "position", e.Position)
	})

	screens, err := lens.NewScreenController(m, player, dom.MemoryDocument{}, overlay.DetectDepthMode(*userAgentFlag), options.VideoScreen)
	if err != nil {
		return err
	}
	page := dom.NewMemoryElement("body")
	if err := screens.Initialize(ctx, page, scene.Viewport.Width, scene.Viewport.Height); err != nil {
		return err
	}
	defer screens.Close()
	onScreen := func(event lens.Event) {
		switch e := event.(type) {
		case lens.TriggerEnterEvent:
			logger.Info("screen shown", "screen", e.Trigger)
		case lens.TriggerExitEvent:
			logger.Info("screen hidden", "screen", e.Trigger)
		}
	}
	screens.Events().Subscribe(lens.TRIGGER_ENTER, onScreen)
	screens.Events().Subscribe(lens.TRIGGER_EXIT, onScreen)

	for i, p := range scene.Path {
		position, err := vec3(p, mgl64.Vec3{})
		if err != nil {
			return fmt.Errorf("path step %d: %w", i, err)
		}
		if err := m.MoveViewport(ctx, 1, position); err != nil {
			return err
		}
		m.RenderFrame(ctx, uint64(i+1))

		transform, err := m.GlobalTransform(ctx, player)
		if err != nil {
			return err
		}
		logger.Info("step",
			"index", i,
			"viewport", position,
			"player", transform.Position,
			"playerVisible", m.Visible(player),
		)
	}

	if *dumpFlag {
		fmt.Println(page.String())
	}
	return nil
}
