package transfer

import (
	"context"
	"fmt"
	"path"
	"strings"
)

const maxNameAttempts = 1000

// AvailableName returns remotePath, or the first "name (n).ext" variant
// for which exists reports false.
func AvailableName(ctx context.Context, remotePath string, exists func(context.Context, string) (bool, error)) (string, error) {
	taken, err := exists(ctx, remotePath)
	if err != nil || !taken {
		return remotePath, err
	}

	dir, name := path.Split(remotePath)
	ext := path.Ext(name)
	if ext == name {
		// ".bashrc" has no extension to keep
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)

	for n := 2; n < maxNameAttempts; n++ {
		candidate := dir + fmt.Sprintf("%s (%d)%s", stem, n, ext)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %s", remotePath)
}
