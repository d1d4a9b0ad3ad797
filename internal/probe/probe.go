// Package probe 外部进程探测
//
// ffprobe/ffmpeg 作为外部协作者调用, 本包只消费其文本输出。
// 超时属于这里的进程调用, 解析核心自身没有超时
package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Prober 外部探测器
type Prober struct {
	FFprobePath string
	FFmpegPath  string
	Timeout     time.Duration
}

// New 创建探测器
func New(ffprobePath string, timeout time.Duration) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{
		FFprobePath: ffprobePath,
		FFmpegPath:  "ffmpeg",
		Timeout:     timeout,
	}
}

// Duration 探测媒体文件时长 (秒)
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("probe: ffprobe 失败: %w", err)
	}

	return ParseDuration(out.String())
}

// ParseDuration 解析 ffprobe 的时长输出
func ParseDuration(output string) (float64, error) {
	s := strings.TrimSpace(output)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("probe: 无时长输出")
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("probe: 时长格式无效 %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("probe: 负时长 %v", d)
	}
	return d, nil
}

// SceneChanges 场景切换时间点探测 (秒)
//
// ffmpeg select/showinfo 滤镜的输出走 stderr
func (p *Prober) SceneChanges(ctx context.Context, path string, threshold float64) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	filter := fmt.Sprintf("select='gt(scene,%g)',showinfo", threshold)
	cmd := exec.CommandContext(ctx, p.FFmpegPath,
		"-i", path,
		"-vf", filter,
		"-f", "null", "-")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("probe: ffmpeg 失败: %w", err)
	}

	return ParseShowinfoTimes(stderr.String()), nil
}

// ParseShowinfoTimes 从 showinfo 输出提取 pts_time 序列
func ParseShowinfoTimes(output string) []float64 {
	var times []float64
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, "pts_time:")
		if idx < 0 {
			continue
		}
		rest := line[idx+len("pts_time:"):]
		if end := strings.IndexByte(rest, ' '); end >= 0 {
			rest = rest[:end]
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
		if err != nil {
			continue
		}
		times = append(times, t)
	}
	return times
}
