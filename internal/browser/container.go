package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/commentbot/internal/automation"
)

const (
	containerPort    = "3000/tcp"
	containerDataDir = "/data"
)

// BrowserContainer is a running browserless container bound to one profile
type BrowserContainer struct {
	ContainerID string
	Profile     string
	ConnectURL  string
	Port        string
}

// Pool launches browserless containers through the Docker API
type Pool struct {
	client *client.Client
	image  string
}

// NewPool connects to the Docker daemon from the environment
func NewPool(imageName string) (*Pool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Pool{
		client: cli,
		image:  imageName,
	}, nil
}

// Launch starts a container with the profile directory mounted as its user data dir
func (p *Pool) Launch(ctx context.Context, profile, profileDir string) (*BrowserContainer, error) {
	containerConfig := &container.Config{
		Image: p.image,
		Labels: map[string]string{
			"profile":    profile,
			"managed-by": "commentbot",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			containerPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerPort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: profileDir,
				Target: containerDataDir,
			},
		},
	}

	resp, err := p.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.remove(resp.ID)
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := p.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		p.remove(resp.ID)
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports[containerPort]
	if len(bindings) == 0 {
		p.remove(resp.ID)
		return nil, fmt.Errorf("container %s has no port binding", resp.ID[:12])
	}
	port := bindings[0].HostPort

	if err := waitForBrowserReady(ctx, port); err != nil {
		p.remove(resp.ID)
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	return &BrowserContainer{
		ContainerID: resp.ID,
		Profile:     profile,
		ConnectURL:  fmt.Sprintf("ws://127.0.0.1:%s", port),
		Port:        port,
	}, nil
}

// Stop stops and removes a container
func (p *Pool) Stop(ctx context.Context, containerID string) error {
	timeout := 10
	if err := p.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	return nil
}

// EnsureImage pulls the browser image if it is not present locally
func (p *Pool) EnsureImage(ctx context.Context) error {
	images, err := p.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == p.image {
				return nil
			}
		}
	}

	reader, err := p.client.ImagePull(ctx, p.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close closes the Docker client
func (p *Pool) Close() error {
	return p.client.Close()
}

func (p *Pool) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

// waitForBrowserReady polls the /json/version endpoint
func waitForBrowserReady(ctx context.Context, port string) error {
	endpoint := fmt.Sprintf("http://127.0.0.1:%s/json/version", port)
	maxRetries := 40

	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return fmt.Errorf("browser did not become ready after %d retries", maxRetries)
}

// ContainerLauncher runs each session in its own browserless container
type ContainerLauncher struct {
	Pool         *Pool
	StartTimeout time.Duration
	Logger       *zap.Logger
}

var _ automation.Launcher = (*ContainerLauncher)(nil)

// Acquire starts a container and connects chromedp to it. Containers are
// always headless.
func (l *ContainerLauncher) Acquire(ctx context.Context, opts automation.SessionOptions) (automation.Surface, error) {
	timeout := l.StartTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	launchCtx, cancelLaunch := context.WithTimeout(ctx, timeout)
	defer cancelLaunch()

	bc, err := l.Pool.Launch(launchCtx, opts.Profile, opts.ProfileDir)
	if err != nil {
		return nil, err
	}

	stop := func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return l.Pool.Stop(stopCtx, bc.ContainerID)
	}

	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(context.Background(), connectURL(bc.ConnectURL, opts), chromedp.NoModifyURL)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}

	if err := start(ctx, browserCtx, timeout); err != nil {
		cancel()
		if stopErr := stop(); stopErr != nil {
			l.logger().Warn("Failed to stop container", zap.String("container", bc.ContainerID), zap.Error(stopErr))
		}
		return nil, fmt.Errorf("failed to connect to browser container: %w", err)
	}

	l.logger().Debug("Browser container ready",
		zap.String("profile", opts.Profile),
		zap.String("container", bc.ContainerID))

	return newSession(browserCtx, cancel, stop), nil
}

func (l *ContainerLauncher) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// connectURL passes Chrome launch flags to browserless as query parameters
func connectURL(base string, opts automation.SessionOptions) string {
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	q := url.Values{}
	q.Set("--user-data-dir", containerDataDir)
	q.Set("--disable-blink-features", "AutomationControlled")
	q.Set("--user-agent", ua)
	q.Set("--window-size", fmt.Sprintf("%d,%d", defaultWindowW, defaultWindowH))
	q.Set("stealth", "true")
	return base + "?" + q.Encode()
}
