package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// fastSlerpLerpThreshold is the 1-cos(theta) cutoff below which FastSlerp falls back to a plain lerp.
const fastSlerpLerpThreshold = 0.001

// FastSlerp performs an approximate spherical linear interpolation between two quaternions.
// The arc angle and the sine terms are computed with short polynomial approximations instead of
// the exact trigonometric functions, and the result is not re-normalized. When the quaternions lie
// in opposite hemispheres b is negated so the shorter arc is taken.
// At t == 0 the result is exactly a, at t == 1 it is exactly b (or -b, the same rotation).
//
// Parameters:
//   - a: the starting rotation
//   - b: the ending rotation
//   - t: interpolation amount in [0, 1]
//
// Returns:
//   - mgl32.Quat: the interpolated rotation
func FastSlerp(a, b mgl32.Quat, t float32) mgl32.Quat {
	cosT := a.Dot(b)
	if cosT < 0 {
		cosT = -cosT
		b = b.Scale(-1)
	}
	if cosT > 1 {
		cosT = 1
	}

	var wa, wb float32
	if 1-cosT > fastSlerpLerpThreshold {
		theta := fastAcos(cosT)
		sinT := fastSin(theta)
		wa = fastSin((1-t)*theta) / sinT
		wb = fastSin(t*theta) / sinT
	} else {
		wa = 1 - t
		wb = t
	}

	return mgl32.Quat{
		W: wa*a.W + wb*b.W,
		V: mgl32.Vec3{
			wa*a.V[0] + wb*b.V[0],
			wa*a.V[1] + wb*b.V[1],
			wa*a.V[2] + wb*b.V[2],
		},
	}
}

// fastAcos approximates acos(x) for x in [0, 1] (Abramowitz & Stegun 4.4.45, |err| < 7e-5).
func fastAcos(x float32) float32 {
	p := ((-0.0187293*x+0.0742610)*x-0.2121144)*x + 1.5707288
	return sqrt32(1-x) * p
}

// fastSin approximates sin(x) for x in [0, pi/2] with a 7th order Taylor polynomial.
func fastSin(x float32) float32 {
	x2 := x * x
	return x * (1 - x2/6*(1-x2/20*(1-x2/42)))
}

func sqrt32(x float32) float32 {
	if x <= 0 {
		return 0
	}
	return float32(math.Sqrt(float64(x)))
}

// BuildTransform composes a rigid transform as translate(t) * rotate(q).
// The result is a column-major matrix, matching the rest of the engine.
//
// Parameters:
//   - t: the translation
//   - q: the rotation
//
// Returns:
//   - mgl32.Mat4: the composed transform
func BuildTransform(t mgl32.Vec3, q mgl32.Quat) mgl32.Mat4 {
	m := q.Mat4()
	m[12], m[13], m[14] = t[0], t[1], t[2]
	return m
}

// Translate post-multiplies m by a pure translation, i.e. returns m * translate(v).
//
// Parameters:
//   - m: the transform to translate
//   - v: the translation in m's local space
//
// Returns:
//   - mgl32.Mat4: the translated transform
func Translate(m mgl32.Mat4, v mgl32.Vec3) mgl32.Mat4 {
	if v[0] == 0 && v[1] == 0 && v[2] == 0 {
		return m
	}
	return m.Mul4(mgl32.Translate3D(v[0], v[1], v[2]))
}

// Translation returns the translation column of a transform.
func Translation(m mgl32.Mat4) mgl32.Vec3 {
	return mgl32.Vec3{m[12], m[13], m[14]}
}

// WithTranslation returns a copy of m with its translation column replaced by v.
func WithTranslation(m mgl32.Mat4, v mgl32.Vec3) mgl32.Mat4 {
	m[12], m[13], m[14] = v[0], v[1], v[2]
	return m
}

// RotationOnly returns m with its translation cleared.
func RotationOnly(m mgl32.Mat4) mgl32.Mat4 {
	return WithTranslation(m, mgl32.Vec3{})
}

// RotateVector applies only the upper 3x3 part of m to v.
func RotateVector(m mgl32.Mat4, v mgl32.Vec3) mgl32.Vec3 {
	return m.Mul4x1(v.Vec4(0)).Vec3()
}

// LerpVec3 linearly interpolates between a and b.
//
// Parameters:
//   - a: value at t == 0
//   - b: value at t == 1
//   - t: interpolation amount
//
// Returns:
//   - mgl32.Vec3: (1-t)*a + t*b
func LerpVec3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	s := 1 - t
	return mgl32.Vec3{
		a[0]*s + b[0]*t,
		a[1]*s + b[1]*t,
		a[2]*s + b[2]*t,
	}
}

// QuatFromXYZW converts a quaternion stored in x, y, z, w order (the on-disk and glTF order)
// into an mgl32.Quat.
func QuatFromXYZW(q [4]float32) mgl32.Quat {
	return mgl32.Quat{W: q[3], V: mgl32.Vec3{q[0], q[1], q[2]}}
}

// QuatToXYZW converts an mgl32.Quat into x, y, z, w order.
func QuatToXYZW(q mgl32.Quat) [4]float32 {
	return [4]float32{q.V[0], q.V[1], q.V[2], q.W}
}
