// 一次性扫描 CLI: 执行单次扫描并打印摘要, 适合 cron 或手工排查
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"

	"footage-browser/internal/config"
	"footage-browser/internal/logging"
	"footage-browser/internal/models"
	"footage-browser/internal/probe"
	"footage-browser/internal/scan"
)

func main() {
	configPath := flag.String("config", "/etc/footage-browser/app.yaml", "配置文件路径")
	debug := flag.Bool("debug", false, "启用调试日志")
	flag.Parse()

	if *debug {
		logging.SetDebugMode(true)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		color.Red("配置错误: %v", err)
		os.Exit(1)
	}

	prober := probe.New(cfg.Parser.FFprobePath, cfg.ProbeTimeout())
	orch := scan.New(cfg, scan.NewStrategy(cfg, prober))

	started := time.Now()
	catalog, err := orch.ScanAll(context.Background())
	if err != nil {
		color.Red("扫描失败: %v", err)
		os.Exit(1)
	}

	bold := color.New(color.Bold)
	bold.Printf("扫描完成 (%s)\n\n", time.Since(started).Round(time.Millisecond))

	total := 0
	for _, cam := range catalog.Cameras {
		segs := catalog.Segments[cam.ID]
		total += len(segs)

		switch catalog.Reasons[cam.ID] {
		case models.ReasonOK:
			color.Green("  %-20s %4d 段", cam.Name, len(segs))
		case models.ReasonNoRecordings:
			color.Yellow("  %-20s 无录像", cam.Name)
		default:
			color.Red("  %-20s 无段落 (%s)", cam.Name, catalog.Reasons[cam.ID])
		}
	}

	fmt.Println()
	bold.Printf("共 %d 路摄像机, %d 段, 目录已写入 %s\n",
		len(catalog.Cameras), total, cfg.Storage.CacheFile)
}
