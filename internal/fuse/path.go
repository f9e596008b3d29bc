package fuse

import "strings"

// childUnder returns the name of dir's direct child that path lies under,
// whether path is that direct child itself, and whether path actually
// lives under dir at all. path and dir are both slash-rooted logical paths
// (e.g. "/a/b/c.txt", "/a").
func childUnder(dir, path string) (name string, isDirect bool, ok bool) {
	if dir == "/" {
		trimmed := strings.TrimPrefix(path, "/")
		if trimmed == "" {
			return "", false, false
		}
		parts := strings.SplitN(trimmed, "/", 2)
		return parts[0], len(parts) == 1, true
	}

	prefix := dir + "/"
	if !strings.HasPrefix(path, prefix) {
		return "", false, false
	}
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" {
		return "", false, false
	}
	parts := strings.SplitN(rest, "/", 2)
	return parts[0], len(parts) == 1, true
}

func join(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
