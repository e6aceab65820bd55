package blob

import (
	"fmt"
	"net/url"
	"strings"
)

// Location is a storage reference reduced to its logical parts.
type Location struct {
	// Container is the logical bucket/container name, empty for plain keys
	// that live in the configured default container.
	Container string

	// Key is the object key within the container.
	Key string
}

// Resolve reduces a blob reference to its logical container and key.
//
// References arrive in several shapes: plain keys, s3:// URIs, and
// fully-qualified HTTPS URLs whose host may embed the container
// (virtual-hosted style, with or without a region infix) or a tenant/account
// qualifier. The container name must be recovered by stripping the known
// qualifier patterns rather than assuming one fixed shape: naively taking
// the first host label turns "media.s3.eu-west-1.amazonaws.com" into a
// wrong-bucket lookup, which fails as object-not-found long after the real
// mistake.
func Resolve(ref string) (Location, error) {
	if ref == "" {
		return Location{}, fmt.Errorf("empty blob reference")
	}

	// Plain key: no scheme, no host.
	if !strings.Contains(ref, "://") {
		return Location{Key: strings.TrimPrefix(ref, "/")}, nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return Location{}, fmt.Errorf("malformed blob reference %q: %w", ref, err)
	}

	key := strings.TrimPrefix(u.Path, "/")

	switch u.Scheme {
	case "s3":
		// Bare qualifier: the host IS the container.
		if u.Host == "" || key == "" {
			return Location{}, fmt.Errorf("incomplete s3 reference %q", ref)
		}
		return Location{Container: u.Host, Key: key}, nil

	case "http", "https":
		host := strings.ToLower(u.Hostname())

		// Virtual-hosted or path-style S3 endpoint, optionally with a region
		// infix: <container>.s3.amazonaws.com, <container>.s3.<region>.amazonaws.com,
		// s3.amazonaws.com/<container>/..., s3.<region>.amazonaws.com/<container>/...
		if trimmed, ok := strings.CutSuffix(host, ".amazonaws.com"); ok {
			labels := strings.Split(trimmed, ".")

			if labels[0] == "s3" {
				// Path style: first path segment is the container.
				container, rest, found := strings.Cut(key, "/")
				if !found || container == "" {
					return Location{}, fmt.Errorf("path-style reference %q has no container", ref)
				}
				return Location{Container: container, Key: rest}, nil
			}

			// Virtual-hosted style: everything before the "s3" label is the
			// container (names may themselves contain dots).
			for i, label := range labels {
				if label == "s3" {
					container := strings.Join(labels[:i], ".")
					if container == "" || key == "" {
						return Location{}, fmt.Errorf("incomplete virtual-hosted reference %q", ref)
					}
					return Location{Container: container, Key: key}, nil
				}
			}
			return Location{}, fmt.Errorf("unrecognized amazonaws host in %q", ref)
		}

		// Tenant-qualified host: <account>.blob.core.windows.net/<container>/...
		// The account label is a tenant qualifier, not the container.
		if strings.HasSuffix(host, ".blob.core.windows.net") {
			container, rest, found := strings.Cut(key, "/")
			if !found || container == "" {
				return Location{}, fmt.Errorf("tenant-qualified reference %q has no container", ref)
			}
			return Location{Container: container, Key: rest}, nil
		}

		return Location{}, fmt.Errorf("unrecognized storage host %q in reference", host)

	default:
		return Location{}, fmt.Errorf("unsupported blob reference scheme %q", u.Scheme)
	}
}
