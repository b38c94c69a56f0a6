package encoder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// EncodeWebP shells out to cwebp, which reads PNG, JPEG and TIFF input
func EncodeWebP(ctx context.Context, in, out string, o EncodeOptions) error {
	args := []string{
		"-quiet",
		"-q", fmt.Sprint(o.quality()),
		in, "-o", out,
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "cwebp", args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("cwebp failed: %w: %s", err, msg)
		}
		return fmt.Errorf("cwebp failed: %w", err)
	}
	return nil
}
