package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/spf13/cobra"
)

var imageCmd = &cobra.Command{
	Use:   "image <prompt>...",
	Short: "Generate images from a prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImage,
}

func init() {
	imageCmd.Flags().String("size", "", "Image size, e.g. 1024x1024")
	imageCmd.Flags().Int("n", 1, "Number of images")
	imageCmd.Flags().String("out", ".", "Directory for inline (base64) images")
	rootCmd.AddCommand(imageCmd)
}

func runImage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	opts := a.callOptions()
	if size, _ := cmd.Flags().GetString("size"); size != "" {
		opts[llm.OptSize] = size
	}
	if n, _ := cmd.Flags().GetInt("n"); n > 1 {
		opts[llm.OptN] = n
	}
	res, err := a.manager.GenerateImage(ctx, a.provider(), strings.Join(args, " "), opts)
	if err != nil {
		return err
	}

	dir, _ := cmd.Flags().GetString("out")
	out := cmd.OutOrStdout()
	for i, img := range res.Images {
		if img.URL != "" {
			fmt.Fprintln(out, img.URL)
			continue
		}
		path, err := saveImage(dir, i, img)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, path)
	}
	return nil
}

func saveImage(dir string, index int, img llm.Image) (string, error) {
	data, err := base64.StdEncoding.DecodeString(img.B64)
	if err != nil {
		return "", fmt.Errorf("failed to decode image %d: %w", index, err)
	}
	ext := ".png"
	if strings.Contains(img.MIME, "jpeg") {
		ext = ".jpg"
	} else if strings.Contains(img.MIME, "webp") {
		ext = ".webp"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("image-%d%s", index+1, ext))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return path, nil
}
