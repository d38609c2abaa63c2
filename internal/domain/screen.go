package domain

// Screen identifies a navigation target on the device.
type Screen string

const (
	ScreenSurvey                Screen = "survey"
	ScreenAudioRecorder         Screen = "audio_recorder"
	ScreenAudioRecorderEnhanced Screen = "audio_recorder_enhanced"
	ScreenMainMenu              Screen = "main_menu"
	ScreenViewMessage           Screen = "view_message"
	ScreenDashboard             Screen = "dashboard"
	ScreenLogin                 Screen = "login"
	ScreenRegister              Screen = "register"
)

// AudioScreen returns the recorder screen for an audio variant.
func AudioScreen(v AudioVariant) Screen {
	if v == AudioEnhanced {
		return ScreenAudioRecorderEnhanced
	}
	return ScreenAudioRecorder
}
