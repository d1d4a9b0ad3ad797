package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kataras/iris/v12"

	"footage-browser/internal/config"
	"footage-browser/internal/kfcache"
	"footage-browser/internal/logging"
	"footage-browser/internal/probe"
	"footage-browser/internal/scan"
	"footage-browser/internal/server"
)

//go:embed static/*
var staticFS embed.FS

func main() {
	configPath := flag.String("config", "/etc/footage-browser/app.yaml", "配置文件路径")
	port := flag.Int("port", 0, "覆盖配置的监听端口")
	cacheDir := flag.String("cache-dir", "", "关键帧缓存目录")
	debug := flag.Bool("debug", false, "启用调试日志")
	flag.Parse()

	if *debug {
		logging.SetDebugMode(true)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("配置错误: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.App.Port = *port
	}
	if *cacheDir != "" {
		kfcache.SetCacheDir(*cacheDir)
	}

	actualPort := findAvailablePort(cfg.App.Port)

	fmt.Println("============================================================")
	fmt.Println(cfg.App.Title)
	fmt.Println("============================================================")
	fmt.Printf("数据目录: %v\n", cfg.Storage.Datadirs)
	fmt.Printf("段落策略: %s (偏移单位: %s)\n", cfg.Parser.Strategy, cfg.Parser.OffsetUnit)
	fmt.Printf("监听地址: http://%s:%d\n", cfg.App.Host, actualPort)
	fmt.Println("============================================================")

	// 扫描核心
	prober := probe.New(cfg.Parser.FFprobePath, cfg.ProbeTimeout())
	orch := scan.New(cfg, scan.NewStrategy(cfg, prober))

	ctx, cancel := context.WithCancel(context.Background())
	go orch.Run(ctx)

	// Iris 应用
	app := iris.New()
	app.Logger().SetLevel("warn")

	// CORS
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", "*")
		ctx.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		ctx.Header("Access-Control-Allow-Headers", "Content-Type")
		if ctx.Method() == "OPTIONS" {
			ctx.StatusCode(204)
			return
		}
		ctx.Next()
	})

	handlers := server.NewHandlers(cfg, orch)
	server.RegisterRoutes(app, handlers)

	// 嵌入的静态文件
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		fmt.Printf("警告: 无法加载嵌入的静态文件: %v\n", err)
	} else {
		app.HandleDir("/", http.FS(staticSub), iris.DirOptions{
			IndexName: "index.html",
			SPA:       true,
		})
	}

	// 优雅关闭
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		fmt.Println("\n正在关闭...")
		cancel()
		app.Shutdown(context.Background())
	}()

	if err := app.Listen(fmt.Sprintf("%s:%d", cfg.App.Host, actualPort)); err != nil {
		fmt.Printf("服务器错误: %v\n", err)
	}
}

// findAvailablePort 查找可用端口, 指定端口被占用则递增
func findAvailablePort(startPort int) int {
	for port := startPort; port < startPort+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			ln.Close()
			return port
		}
	}
	return startPort
}
