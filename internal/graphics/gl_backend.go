package graphics

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/golang/glog"

	"nescore/internal/input"
)

// GLBackend presents frames by blitting a 2D texture through GLFW/OpenGL.
type GLBackend struct{}

// NewGLBackend creates a GL backend.
func NewGLBackend() Backend {
	return &GLBackend{}
}

func (b *GLBackend) Name() string   { return "gl" }
func (b *GLBackend) Headless() bool { return false }

const (
	glVertexShader = `
  #version 330

  attribute vec3 position;
  attribute vec2 uv;
  varying vec2 vuv;
  void main(void){
    gl_Position = vec4(position, 1.0);
    vuv = uv;
  }
  ` + "\x00"

	glFragmentShader = `
  #version 330

  varying vec2 vuv;
  uniform sampler2D tex;
  void main(void){
    gl_FragColor = texture2D(tex, vuv);
  }
  ` + "\x00"
)

var (
	glVertexPosition = []float32{1, 1, -1, 1, -1, -1, 1, -1}
	glVertexUV       = []float32{1, 0, 0, 0, 0, 1, 1, 1}
)

func compileShader(code string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	ccode := gl.Str(code)
	gl.ShaderSource(shader, 1, &ccode, nil)
	gl.CompileShader(shader)
	var result int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &result)
	if result == gl.FALSE {
		var length int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &length)
		info := strings.Repeat("\x00", int(length+1))
		gl.GetShaderInfoLog(shader, length, nil, gl.Str(info))
		return 0, fmt.Errorf("compiling shader: %v", info)
	}
	return shader, nil
}

func newProgram() (uint32, error) {
	vertex, err := compileShader(glVertexShader, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fragment, err := compileShader(glFragmentShader, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}
	program := gl.CreateProgram()
	gl.AttachShader(program, vertex)
	gl.AttachShader(program, fragment)
	gl.LinkProgram(program)
	var result int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &result)
	if result == gl.FALSE {
		var length int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &length)
		info := strings.Repeat("\x00", int(length+1))
		gl.GetProgramInfoLog(program, length, nil, gl.Str(info))
		return 0, fmt.Errorf("linking program: %v", info)
	}
	gl.DeleteShader(vertex)
	gl.DeleteShader(fragment)
	return program, nil
}

// drawFrame uploads the framebuffer as a texture and draws the quad.
func drawFrame(program, texture uint32, frame *[FrameWidth * FrameHeight]uint32, pixels []byte) {
	for i, px := range frame {
		pixels[i*4] = byte(px >> 16)
		pixels[i*4+1] = byte(px >> 8)
		pixels[i*4+2] = byte(px)
		pixels[i*4+3] = byte(px >> 24)
	}

	gl.BindTexture(gl.TEXTURE_2D, texture)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, FrameWidth, FrameHeight,
		0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))

	positionLocation := uint32(gl.GetAttribLocation(program, gl.Str("position\x00")))
	uvLocation := uint32(gl.GetAttribLocation(program, gl.Str("uv\x00")))
	texLocation := gl.GetUniformLocation(program, gl.Str("tex\x00"))
	gl.EnableVertexAttribArray(positionLocation)
	gl.EnableVertexAttribArray(uvLocation)
	gl.Uniform1i(texLocation, 0)
	gl.VertexAttribPointer(positionLocation, 2, gl.FLOAT, false, 0, gl.Ptr(glVertexPosition))
	gl.VertexAttribPointer(uvLocation, 2, gl.FLOAT, false, 0, gl.Ptr(glVertexUV))
	gl.DrawArrays(gl.TRIANGLE_FAN, 0, 4)
}

// glKeys maps GLFW keys to controller 1 buttons.
var glKeys = map[glfw.Key]input.Button{
	glfw.KeyZ:          input.ButtonA,
	glfw.KeyX:          input.ButtonB,
	glfw.KeyRightShift: input.ButtonSelect,
	glfw.KeyEnter:      input.ButtonStart,
	glfw.KeyUp:         input.ButtonUp,
	glfw.KeyDown:       input.ButtonDown,
	glfw.KeyLeft:       input.ButtonLeft,
	glfw.KeyRight:      input.ButtonRight,
}

func pollButtons(window *glfw.Window) uint8 {
	var buttons uint8
	for key, button := range glKeys {
		if window.GetKey(key) == glfw.Press {
			buttons |= uint8(button)
		}
	}
	return buttons
}

// Run opens a GLFW window and drives the machine one frame per swap.
func (b *GLBackend) Run(machine Machine, config Config) error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("initialising GLFW: %w", err)
	}
	defer glfw.Terminate()

	scale := config.Scale
	if scale <= 0 {
		scale = 3
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 3)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	window, err := glfw.CreateWindow(FrameWidth*scale, FrameHeight*scale, config.WindowTitle, nil, nil)
	if err != nil {
		return fmt.Errorf("creating window: %w", err)
	}
	window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		return fmt.Errorf("initialising OpenGL: %w", err)
	}
	program, err := newProgram()
	if err != nil {
		return err
	}
	gl.UseProgram(program)

	var texture uint32
	gl.GenTextures(1, &texture)
	pixels := make([]byte, FrameWidth*FrameHeight*4)

	glog.Infof("gl window %dx%d", FrameWidth*scale, FrameHeight*scale)
	for !window.ShouldClose() {
		machine.SetButtons1(pollButtons(window))
		frame, err := machine.StepFrame()
		if err != nil {
			return err
		}
		drawFrame(program, texture, frame, pixels)
		window.SwapBuffers()
		glfw.PollEvents()
	}
	return nil
}
