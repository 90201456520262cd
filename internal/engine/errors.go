package engine

import "errors"

var (
	// ErrFrameInProgress is returned by BeginFrame while a frame is started.
	ErrFrameInProgress = errors.New("engine: cannot begin frame while one is in progress")
	// ErrNoFrameInProgress is returned when a frame operation runs outside
	// BeginFrame/EndFrame.
	ErrNoFrameInProgress = errors.New("engine: no frame in progress")
	// ErrForeignCommandBuffer is returned when a render pass is begun or
	// ended on a command buffer other than the current frame's.
	ErrForeignCommandBuffer = errors.New("engine: render pass on a command buffer from a different frame")
	// ErrSwapFormatChanged means a rebuilt swapchain changed its color or
	// depth format. Pipelines built for the old render pass are unusable.
	ErrSwapFormatChanged = errors.New("engine: swap chain image or depth format has changed")
	// ErrUnsupportedLayoutTransition is returned by TransitionImageLayout.
	ErrUnsupportedLayoutTransition = errors.New("engine: unsupported layout transition")
	// ErrNoSupportedFormat means none of the candidate formats has the
	// requested features.
	ErrNoSupportedFormat = errors.New("engine: failed to find supported format")
)
