package config

// Generation defaults used when neither the config file nor the environment
// provides a value.
const (
	DefaultImagePrompt = "put a SINGULAR realistic display setup for the product here inside of a generic store that isn't branded. ensure it is the main focus and there isn't anything that isn't the product near it. ENSURE THERE ARE NO PRICE TAGS."
	DefaultVideoPrompt = "bring the camera closer to the product and add a hand"
	DefaultImageModel  = "fal-ai/nano-banana-pro/edit"
	DefaultVideoModel  = "fal-ai/kling-video/v2.6/pro/image-to-video"
)
